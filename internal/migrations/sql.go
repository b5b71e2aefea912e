package migrations

const (
	// FounderEmailIndex enforces one founder per case-folded email.
	FounderEmailIndex = "founders_email_lower_key"
	// IdentityEmailIndex enforces one identity per case-folded email.
	IdentityEmailIndex = "users_email_lower_key"

	// AdoptOrphanFunction re-keys a founder row left behind by an earlier
	// identity with the caller's email. It returns the previous id, or NULL
	// when there was nothing to adopt.
	AdoptOrphanFunction = "public.adopt_orphan_founder"

	// SQLStateEmailClaimed is raised by AdoptOrphanFunction when the email
	// is held by another live identity.
	SQLStateEmailClaimed = "FD409"
)

const createRolesSQL = `
DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = 'anon') THEN
    CREATE ROLE anon NOLOGIN;
  END IF;
  IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = 'authenticated') THEN
    CREATE ROLE authenticated NOLOGIN;
  END IF;
END
$$`

const authUIDSQL = `
CREATE OR REPLACE FUNCTION auth.uid() RETURNS uuid
LANGUAGE sql STABLE
AS $$
  SELECT nullif(current_setting('request.jwt.claim.sub', true), '')::uuid
$$`

const authRoleSQL = `
CREATE OR REPLACE FUNCTION auth.role() RETURNS text
LANGUAGE sql STABLE
AS $$
  SELECT nullif(current_setting('request.jwt.claim.role', true), '')
$$`

const adoptOrphanSQL = `
CREATE OR REPLACE FUNCTION ` + AdoptOrphanFunction + `(p_email text) RETURNS uuid
LANGUAGE plpgsql
SECURITY DEFINER
SET search_path = public, auth, pg_temp
AS $$
DECLARE
  caller uuid := auth.uid();
  caller_email text;
  orphan uuid;
BEGIN
  IF caller IS NULL THEN
    RAISE EXCEPTION 'anonymous callers cannot adopt profiles' USING ERRCODE = '42501';
  END IF;

  SELECT lower(u.email) INTO caller_email FROM auth.users u WHERE u.id = caller;
  IF caller_email IS NULL OR caller_email <> lower(p_email) THEN
    RAISE EXCEPTION 'email does not belong to the caller' USING ERRCODE = '42501';
  END IF;

  IF EXISTS (SELECT 1 FROM public.founders f WHERE f.id = caller) THEN
    RETURN NULL;
  END IF;

  SELECT f.id INTO orphan FROM public.founders f WHERE lower(f.email) = caller_email FOR UPDATE;
  IF orphan IS NULL THEN
    RETURN NULL;
  END IF;

  IF EXISTS (SELECT 1 FROM auth.users u WHERE u.id = orphan) THEN
    RAISE EXCEPTION 'email is held by another identity' USING ERRCODE = '` + SQLStateEmailClaimed + `';
  END IF;

  UPDATE public.founders SET id = caller, email = caller_email, updated_at = now() WHERE id = orphan;
  RETURN orphan;
END;
$$`
