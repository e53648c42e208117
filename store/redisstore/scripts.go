package redisstore

import "github.com/redis/go-redis/v9"

const (
	scriptNotFound  int64 = 0
	scriptStale     int64 = 1
	scriptApplied   int64 = 2
	scriptDuplicate int64 = 3
)

// KEYS: token, hash, user, exp
// ARGV: id, hash, user, device, status, expires, created, modified
const insertScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 3
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1], "hash", ARGV[2], "user", ARGV[3], "device", ARGV[4],
  "status", ARGV[5], "expires", ARGV[6], "created", ARGV[7], "modified", ARGV[8],
  "revoked", "", "replaced", "")
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[1])
redis.call("ZADD", KEYS[4], ARGV[6], ARGV[1])
return 2
`

var insertLua = redis.NewScript(insertScript)

// KEYS: token
// ARGV: from, status, revoked, replaced, modified
const transitionScript = `
local cur = redis.call("HGET", KEYS[1], "status")
if not cur then
  return 0
end
if cur ~= ARGV[1] then
  return 1
end
redis.call("HSET", KEYS[1], "status", ARGV[2], "revoked", ARGV[3], "replaced", ARGV[4], "modified", ARGV[5])
return 2
`

var transitionLua = redis.NewScript(transitionScript)

// KEYS: old token, next token, next hash, user, exp
// ARGV: old status, old revoked, old replaced, modified,
//
//	next id, next hash, next device, next expires, next created
const rotateScript = `
local cur = redis.call("HGET", KEYS[1], "status")
if not cur then
  return 0
end
if cur ~= "active" then
  return 1
end
if redis.call("EXISTS", KEYS[3]) == 1 then
  return 3
end
local user = redis.call("HGET", KEYS[1], "user")
redis.call("HSET", KEYS[1], "status", ARGV[1], "revoked", ARGV[2], "replaced", ARGV[3], "modified", ARGV[4])
redis.call("HSET", KEYS[2],
  "id", ARGV[5], "hash", ARGV[6], "user", user, "device", ARGV[7],
  "status", "active", "expires", ARGV[8], "created", ARGV[9], "modified", ARGV[4],
  "revoked", "", "replaced", "")
redis.call("SET", KEYS[3], ARGV[5])
redis.call("SADD", KEYS[4], ARGV[5])
redis.call("ZADD", KEYS[5], ARGV[8], ARGV[5])
return 2
`

var rotateLua = redis.NewScript(rotateScript)

// revokeActive is shared by the chain cascade and revoke-all.
const revokeActiveFunc = `
local function revoke_active(user_key, token_prefix, now)
  local revoked = {}
  for _, id in ipairs(redis.call("SMEMBERS", user_key)) do
    local key = token_prefix .. id
    if redis.call("HGET", key, "status") == "active" then
      redis.call("HSET", key, "status", "revoked", "revoked", now, "modified", now)
      table.insert(revoked, id)
    end
  end
  return revoked
end
`

// KEYS: token, user
// ARGV: from, status, revoked, replaced, modified, token prefix, now
const reuseScript = revokeActiveFunc + `
local cur = redis.call("HGET", KEYS[1], "status")
if not cur then
  return {0}
end
if cur ~= ARGV[1] then
  return {1}
end
redis.call("HSET", KEYS[1], "status", ARGV[2], "revoked", ARGV[3], "replaced", ARGV[4], "modified", ARGV[5])
local revoked = revoke_active(KEYS[2], ARGV[6], ARGV[7])
local out = {2}
for _, id in ipairs(revoked) do
  table.insert(out, id)
end
return out
`

var reuseLua = redis.NewScript(reuseScript)

// KEYS: user
// ARGV: token prefix, now
const revokeAllScript = revokeActiveFunc + `
return revoke_active(KEYS[1], ARGV[1], ARGV[2])
`

var revokeAllLua = redis.NewScript(revokeAllScript)

const deleteTokenFunc = `
local function delete_token(id, token_prefix, hash_prefix, user_prefix, exp_key)
  local key = token_prefix .. id
  local fields = redis.call("HMGET", key, "hash", "user")
  if fields[1] then
    redis.call("DEL", hash_prefix .. fields[1])
  end
  if fields[2] then
    redis.call("SREM", user_prefix .. fields[2], id)
  end
  redis.call("ZREM", exp_key, id)
  return redis.call("DEL", key)
end
`

// KEYS: user, exp
// ARGV: token prefix, hash prefix, user prefix, now
const deleteExpiredForUserScript = deleteTokenFunc + `
local now = tonumber(ARGV[4])
local deleted = 0
for _, id in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  local expires = tonumber(redis.call("HGET", ARGV[1] .. id, "expires"))
  if not expires then
    redis.call("SREM", KEYS[1], id)
  elseif expires <= now then
    deleted = deleted + delete_token(id, ARGV[1], ARGV[2], ARGV[3], KEYS[2])
  end
end
return deleted
`

var deleteExpiredForUserLua = redis.NewScript(deleteExpiredForUserScript)

// KEYS: exp
// ARGV: token prefix, hash prefix, user prefix, now, limit
const deleteExpiredScript = deleteTokenFunc + `
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[4], "LIMIT", 0, tonumber(ARGV[5]))
local deleted = 0
for _, id in ipairs(ids) do
  deleted = deleted + delete_token(id, ARGV[1], ARGV[2], ARGV[3], KEYS[1])
end
return deleted
`

var deleteExpiredLua = redis.NewScript(deleteExpiredScript)
