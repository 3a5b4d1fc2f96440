package protocol

import (
	"github.com/mosaicnetworks/graphshare/src/graph"
)

// Type identifies the kind of a Message. It is the first byte of every encoded
// message.
type Type uint8

const (
	// TypeGraphSync identifies a GraphSync message
	TypeGraphSync Type = iota + 1
	// TypeEntityUpdate identifies an EntityUpdate message
	TypeEntityUpdate
	// TypeEntityBatchUpdate identifies an EntityBatchUpdate message
	TypeEntityBatchUpdate
	// TypeEntityDelete identifies an EntityDelete message
	TypeEntityDelete
	// TypeGetFile identifies a GetFile message
	TypeGetFile
	// TypeFileResponse identifies a FileResponse message
	TypeFileResponse
)

// String returns the canonical upper-case name of the message type.
func (t Type) String() string {
	switch t {
	case TypeGraphSync:
		return "GRAPH_SYNC"
	case TypeEntityUpdate:
		return "ENTITY_UPDATE"
	case TypeEntityBatchUpdate:
		return "ENTITY_BATCH_UPDATE"
	case TypeEntityDelete:
		return "ENTITY_DELETE"
	case TypeGetFile:
		return "GET_FILE"
	case TypeFileResponse:
		return "FILE_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// Message is implemented by the six message kinds of this package, and only by
// them.
type Message interface {
	Type() Type
	isMessage()
}

// SnapshotVersion is the version of the GraphSnapshot format.
const SnapshotVersion = 1

// AssetRef points to a binary asset, relative to the host's content root, that
// is referenced by an entity.
type AssetRef struct {
	Path   string `codec:"path"`
	Entity string `codec:"entity,omitempty"`
	MIME   string `codec:"mime,omitempty"`
}

// GraphSnapshot is a full, serializable copy of the shared graph. A guest
// replaces its mirror with it; it is never merged.
type GraphSnapshot struct {
	Version           int                     `codec:"version"`
	Entities          map[string]graph.Entity `codec:"entities"`
	Assets            map[string]AssetRef     `codec:"assets,omitempty"`
	DefaultVisibility *graph.Visibility       `codec:"defaultVisibility,omitempty"`
	SharedMode        bool                    `codec:"sharedMode"`
}

// GraphSync carries the snapshot sent to a guest when its connection opens.
type GraphSync struct {
	Snapshot GraphSnapshot `codec:"snapshot"`
}

// EntityUpdate carries a sanitized entity that replaces the guest's copy.
type EntityUpdate struct {
	Entity graph.Entity `codec:"entity"`
}

// EntityBatchUpdate carries partial entities, keyed by entity id, whose fields
// are merged into the guest's copies.
type EntityBatchUpdate struct {
	Updates map[string]graph.Entity `codec:"updates"`
}

// EntityDelete carries the id of an entity removed from the graph.
type EntityDelete struct {
	ID string `codec:"id"`
}

// GetFile asks the host for the asset at Path. The response carries the same
// RequestID.
type GetFile struct {
	RequestID string `codec:"requestId"`
	Path      string `codec:"path"`
}

// FileResponse answers a GetFile. When Found is false, MIME and Data are empty.
type FileResponse struct {
	RequestID string `codec:"requestId"`
	Found     bool   `codec:"found"`
	MIME      string `codec:"mime,omitempty"`
	Data      []byte `codec:"data,omitempty"`
}

// Type implements the Message interface
func (*GraphSync) Type() Type { return TypeGraphSync }

// Type implements the Message interface
func (*EntityUpdate) Type() Type { return TypeEntityUpdate }

// Type implements the Message interface
func (*EntityBatchUpdate) Type() Type { return TypeEntityBatchUpdate }

// Type implements the Message interface
func (*EntityDelete) Type() Type { return TypeEntityDelete }

// Type implements the Message interface
func (*GetFile) Type() Type { return TypeGetFile }

// Type implements the Message interface
func (*FileResponse) Type() Type { return TypeFileResponse }

func (*GraphSync) isMessage()         {}
func (*EntityUpdate) isMessage()      {}
func (*EntityBatchUpdate) isMessage() {}
func (*EntityDelete) isMessage()      {}
func (*GetFile) isMessage()           {}
func (*FileResponse) isMessage()      {}

// newMessage returns an empty message of the given type.
func newMessage(t Type) (Message, error) {
	switch t {
	case TypeGraphSync:
		return &GraphSync{}, nil
	case TypeEntityUpdate:
		return &EntityUpdate{}, nil
	case TypeEntityBatchUpdate:
		return &EntityBatchUpdate{}, nil
	case TypeEntityDelete:
		return &EntityDelete{}, nil
	case TypeGetFile:
		return &GetFile{}, nil
	case TypeFileResponse:
		return &FileResponse{}, nil
	default:
		return nil, ErrUnknownMessageType
	}
}
