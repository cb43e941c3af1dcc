// Package lua implements entity and operation filters written in Lua.
//
// A filter script defines a global accept(entity) function, a global
// accept_operation(op) function, or both. Each returns a truthy value to
// dispatch the event:
//
//	function accept(e)
//	  return e.db == 0 and string.sub(e.key, 1, 5) == "user:"
//	end
//
//	function accept_operation(op)
//	  return op.name ~= "PUBLISH"
//	end
//
// Entities are passed as tables with the fields db, key, kind, encoding,
// expires_at (milliseconds, nil when the key does not expire), len and,
// for strings, lists, sets, sorted sets and hashes, value. Operations carry
// name, args, key, db and offset.
//
// Scripts run in a sandbox with only the base, table, string and math
// libraries. A script error rejects the event and is kept for Err.
package lua
