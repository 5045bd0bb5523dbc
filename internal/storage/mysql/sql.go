package mysql

// The (business_id, platform, platform_review_id) unique key is the sole
// idempotency mechanism for ingestion. The conflict clause refreshes only
// platform-supplied fields; status and the response columns belong to the
// approval workflow and are never touched here.
const upsertReviewSQL = `
INSERT INTO reviews
  (business_id, platform, platform_review_id,
   reviewer_name, reviewer_photo_url, reviewer_profile_url,
   rating, content, lang, sentiment, status, reviewed_at, raw)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', COALESCE(?, CURRENT_TIMESTAMP), ?)
ON DUPLICATE KEY UPDATE
  reviewer_name        = COALESCE(VALUES(reviewer_name), reviews.reviewer_name),
  reviewer_photo_url   = COALESCE(VALUES(reviewer_photo_url), reviews.reviewer_photo_url),
  reviewer_profile_url = COALESCE(VALUES(reviewer_profile_url), reviews.reviewer_profile_url),
  rating               = COALESCE(VALUES(rating), reviews.rating),
  content              = COALESCE(VALUES(content), reviews.content),
  lang                 = COALESCE(VALUES(lang), reviews.lang),
  raw                  = COALESCE(VALUES(raw), reviews.raw),
  updated_at           = CURRENT_TIMESTAMP
`

// Optimistic status transition: the WHERE status=? guard means a stale caller
// affects zero rows instead of clobbering a concurrent transition.
const transitionStatusSQL = `
UPDATE reviews SET
  status         = ?,
  draft_response = COALESCE(?, draft_response),
  final_response = COALESCE(?, final_response),
  responded_at   = COALESCE(?, responded_at),
  publish_error  = ?,
  updated_at     = CURRENT_TIMESTAMP
WHERE id = ? AND status = ?
`

// Compensation for a publish claim whose platform write then failed. The
// status='published' guard keeps it scoped to the claim holder.
const markPublishFailedSQL = `
UPDATE reviews SET
  status         = 'failed',
  publish_error  = ?,
  final_response = NULL,
  responded_at   = NULL,
  updated_at     = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'published'
`

const insertSyncLogSQL = `
INSERT INTO sync_logs
  (id, business_id, started_at, finished_at, success, total_new, total_published, error, results)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const upsertConnectionSQL = `
INSERT INTO platform_connections
  (business_id, platform, external_account_id, external_location_id,
   access_token, refresh_token, token_expires_at, enabled)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  external_account_id  = VALUES(external_account_id),
  external_location_id = VALUES(external_location_id),
  access_token         = VALUES(access_token),
  refresh_token        = VALUES(refresh_token),
  token_expires_at     = VALUES(token_expires_at),
  enabled              = VALUES(enabled),
  updated_at           = CURRENT_TIMESTAMP
`

const saveConnectionTokenSQL = `
UPDATE platform_connections SET
  access_token     = ?,
  refresh_token    = COALESCE(?, refresh_token),
  token_expires_at = ?,
  updated_at       = CURRENT_TIMESTAMP
WHERE id = ?
`

const saveConnectionCursorSQL = `
UPDATE platform_connections SET last_cursor = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

const reviewColumns = `
  id, business_id, platform, platform_review_id,
  reviewer_name, reviewer_photo_url, reviewer_profile_url,
  rating, content, lang, sentiment,
  status, draft_response, final_response, responded_at, publish_error,
  reviewed_at, raw
`

const getReviewSQL = `SELECT` + reviewColumns + `FROM reviews WHERE id = ?`

const listByStatusSQL = `
SELECT` + reviewColumns + `
FROM reviews
WHERE business_id = ? AND status = ?
`

const getBusinessSQL = `
SELECT id, name, active, response_mode, response_tone, response_languages, created_at, deleted_at
FROM businesses
WHERE id = ?
`

const listActiveBusinessesSQL = `
SELECT id, name, active, response_mode, response_tone, response_languages, created_at, deleted_at
FROM businesses
WHERE active = 1 AND deleted_at IS NULL
ORDER BY id
`

const listConnectionsSQL = `
SELECT id, business_id, platform, external_account_id, external_location_id,
       access_token, refresh_token, token_expires_at, enabled, last_cursor
FROM platform_connections
WHERE business_id = ? AND enabled = 1
ORDER BY platform
`
