package sqlinline

const QEnsureSchema = `--sql 96fd8ae0-a139-4787-8439-d23bfe9d4ba4
create table if not exists users (
    id text primary key,
    email text not null default '',
    tier text not null default 'none',
    billing_status text not null default 'inactive',
    operations_used integer not null default 0 check (operations_used >= 0),
    period_start timestamptz not null default now(),
    credits integer not null default 0 check (credits >= 0),
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create table if not exists user_artifacts (
    id text primary key,
    user_id text not null references users(id) on delete cascade,
    batch_id text not null,
    operation_index integer not null,
    url text not null,
    size_bytes bigint not null default 0,
    duration_seconds integer not null default 0,
    prompt text not null default '',
    metadata jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now()
);
create index if not exists user_artifacts_user_created_idx on user_artifacts (user_id, created_at desc);
create table if not exists credit_grants (
    payment_ref text primary key,
    user_id text not null references users(id) on delete cascade,
    amount integer not null,
    created_at timestamptz not null default now()
);
create table if not exists integration_tokens (
    id uuid primary key default gen_random_uuid(),
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`
