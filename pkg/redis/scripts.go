package redis

import "github.com/redis/go-redis/v9"

// Script replies are a status string optionally followed by the resulting
// waitlist order.
const (
	replyOK                = "OK"
	replyAlreadyPlaying    = "ALREADY_PLAYING"
	replyAlreadyInWaitlist = "ALREADY_IN_WAITLIST"
	replyNotInWaitlist     = "NOT_IN_WAITLIST"
	replyUserIsPlaying     = "USER_IS_PLAYING"
)

// KEYS: waitlist, current DJ. ARGV: user ID, position (negative appends).
var addToWaitlistScript = redis.NewScript(`
local user_id = ARGV[1]
local position = tonumber(ARGV[2])
if redis.call('GET', KEYS[2]) == user_id then
  return {'ALREADY_PLAYING'}
end
local list = redis.call('LRANGE', KEYS[1], 0, -1)
for _, id in ipairs(list) do
  if id == user_id then
    return {'ALREADY_IN_WAITLIST'}
  end
end
if position < 0 or position >= #list then
  redis.call('RPUSH', KEYS[1], user_id)
else
  redis.call('LINSERT', KEYS[1], 'BEFORE', list[position + 1], user_id)
end
local result = {'OK'}
for _, id in ipairs(redis.call('LRANGE', KEYS[1], 0, -1)) do
  table.insert(result, id)
end
return result
`)

// KEYS: waitlist, current DJ. ARGV: user ID, target position. The user ends
// up before whoever is at position now; a position past the end appends.
var moveInWaitlistScript = redis.NewScript(`
local user_id = ARGV[1]
local position = tonumber(ARGV[2])
if redis.call('GET', KEYS[2]) == user_id then
  return {'USER_IS_PLAYING'}
end
local list = redis.call('LRANGE', KEYS[1], 0, -1)
local found = false
for _, id in ipairs(list) do
  if id == user_id then
    found = true
    break
  end
end
if not found then
  return {'NOT_IN_WAITLIST'}
end
if position < 0 then
  position = 0
end
local target = list[position + 1]
if target ~= user_id then
  redis.call('LREM', KEYS[1], 0, user_id)
  if target == nil then
    redis.call('RPUSH', KEYS[1], user_id)
  else
    redis.call('LINSERT', KEYS[1], 'BEFORE', target, user_id)
  end
end
local result = {'OK'}
for _, id in ipairs(redis.call('LRANGE', KEYS[1], 0, -1)) do
  table.insert(result, id)
end
return result
`)

// KEYS: waitlist. ARGV: consumed user (may be empty), user to requeue (may be
// empty). Only the consumed user is taken out, wherever they are, so a user
// who joined after the caller read the waitlist stays in line. The requeued
// user is appended unless already waiting.
var cycleWaitlistScript = redis.NewScript(`
if ARGV[1] ~= '' then
  redis.call('LREM', KEYS[1], 0, ARGV[1])
end
if ARGV[2] ~= '' and ARGV[2] ~= ARGV[1] then
  local waiting = false
  for _, id in ipairs(redis.call('LRANGE', KEYS[1], 0, -1)) do
    if id == ARGV[2] then
      waiting = true
      break
    end
  end
  if not waiting then
    redis.call('RPUSH', KEYS[1], ARGV[2])
  end
end
return redis.call('LRANGE', KEYS[1], 0, -1)
`)

// KEYS: target set, opposite set. ARGV: user ID. Returns 1 when the tally
// changed.
var voteScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
  return 0
end
redis.call('SREM', KEYS[2], ARGV[1])
redis.call('SADD', KEYS[1], ARGV[1])
return 1
`)

// KEYS: current DJ, remove flag. ARGV: user ID, '1' or '0'. Returns -1 when
// the user is not the current DJ.
var removeAfterCurrentPlayScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
  return -1
end
if ARGV[2] == '1' then
  redis.call('SET', KEYS[2], '1')
  return 1
end
redis.call('DEL', KEYS[2])
return 0
`)
