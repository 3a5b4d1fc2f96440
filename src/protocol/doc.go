// Package protocol defines the messages exchanged between a host and its
// guests, and their binary encoding.
//
// Messages form a closed set of six kinds. The first four are one-way
// broadcasts from the host to its guests:
//
//  GraphSync         // full snapshot, sent once per connection
//  EntityUpdate      // one entity, replaced as a whole
//  EntityBatchUpdate // partial entities keyed by id
//  EntityDelete      // id of a removed entity
//
// The last two form a request/response pair correlated by a request id:
//
//  GetFile      // guest asks for an asset by relative path
//  FileResponse // host answers with the bytes or found=false
//
// On the wire, a message is a single byte identifying its type followed by the
// msgpack encoding of its body.
package protocol
