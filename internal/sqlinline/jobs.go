package sqlinline

// Every query returning a job selects the columns in this order:
// id, user_id, status, instructions, character_image, product_image,
// output_image, error_code, error_message, engine_execution_id, attempts,
// created_at, updated_at, completed_at.

const QInsertJob = `--sql 16da2da2-718c-4511-9ffc-fa5d3c1ba8f8
insert into jobs (
  user_id,
  status,
  instructions,
  character_image,
  product_image
)
values ($1::text, 'pending', $2::text, $3::text, $4::text)
returning
  id::text,
  user_id,
  status,
  instructions,
  character_image,
  product_image,
  coalesce(output_image, ''),
  coalesce(error_code, ''),
  coalesce(error_message, ''),
  coalesce(engine_execution_id, ''),
  attempts,
  created_at,
  updated_at,
  completed_at;
`

const QSelectJobForUser = `--sql 0f38900f-95f2-4c33-8f2c-9076eb81ebf7
select
  id::text,
  user_id,
  status,
  instructions,
  character_image,
  product_image,
  coalesce(output_image, ''),
  coalesce(error_code, ''),
  coalesce(error_message, ''),
  coalesce(engine_execution_id, ''),
  attempts,
  created_at,
  updated_at,
  completed_at
from jobs
where id = $1::uuid
  and user_id = $2::text;
`

const QSelectJobByID = `--sql ebe7ec40-2661-4a1c-922f-70a94d6e82a4
select
  id::text,
  user_id,
  status,
  instructions,
  character_image,
  product_image,
  coalesce(output_image, ''),
  coalesce(error_code, ''),
  coalesce(error_message, ''),
  coalesce(engine_execution_id, ''),
  attempts,
  created_at,
  updated_at,
  completed_at
from jobs
where id = $1::uuid;
`

const QListJobsByUser = `--sql 478b650d-5dee-4df6-9363-480900af2796
select
  id::text,
  user_id,
  status,
  instructions,
  character_image,
  product_image,
  coalesce(output_image, ''),
  coalesce(error_code, ''),
  coalesce(error_message, ''),
  coalesce(engine_execution_id, ''),
  attempts,
  created_at,
  updated_at,
  completed_at
from jobs
where user_id = $1::text
order by created_at desc, id desc;
`

const QDeleteJobForUser = `--sql aef949b0-3a15-4c7f-90f1-25d2fc93aee1
delete from jobs
where id = $1::uuid
  and user_id = $2::text;
`

// QMarkJobRunning only moves pending jobs; a job finalized by a concurrent
// callback is left untouched and no row is returned.
const QMarkJobRunning = `--sql 5b93dd09-76ec-4cb7-94e4-af8ead9382a9
update jobs
set status = 'running',
    updated_at = now()
where id = $1::uuid
  and status = 'pending'
returning
  id::text,
  user_id,
  status,
  instructions,
  character_image,
  product_image,
  coalesce(output_image, ''),
  coalesce(error_code, ''),
  coalesce(error_message, ''),
  coalesce(engine_execution_id, ''),
  attempts,
  created_at,
  updated_at,
  completed_at;
`

// QCompleteJob is the compare-and-swap finalizer for successful jobs.
const QCompleteJob = `--sql 01822141-b801-4324-9042-f1c22d306ff8
update jobs
set status = 'completed',
    output_image = $2::text,
    engine_execution_id = coalesce(nullif($3::text, ''), engine_execution_id),
    completed_at = now(),
    updated_at = now()
where id = $1::uuid
  and status in ('pending', 'running')
returning
  id::text,
  user_id,
  status,
  instructions,
  character_image,
  product_image,
  coalesce(output_image, ''),
  coalesce(error_code, ''),
  coalesce(error_message, ''),
  coalesce(engine_execution_id, ''),
  attempts,
  created_at,
  updated_at,
  completed_at;
`

// QFailJob is the compare-and-swap finalizer for failed jobs.
const QFailJob = `--sql 096f5092-0da9-4da2-9e23-4e4cbbc53c94
update jobs
set status = 'failed',
    error_code = $2::text,
    error_message = $3::text,
    completed_at = now(),
    updated_at = now()
where id = $1::uuid
  and status in ('pending', 'running')
returning
  id::text,
  user_id,
  status,
  instructions,
  character_image,
  product_image,
  coalesce(output_image, ''),
  coalesce(error_code, ''),
  coalesce(error_message, ''),
  coalesce(engine_execution_id, ''),
  attempts,
  created_at,
  updated_at,
  completed_at;
`

const QIncrementJobAttempts = `--sql 48aa71e0-f747-4835-8a8f-61be65006670
update jobs
set attempts = attempts + 1,
    updated_at = now()
where id = $1::uuid;
`

const QPing = `--sql ef884829-1382-49a4-b6e5-075b1c9f0a3f
select 1;
`
