package model

// EventKind enumerates the fixed set of resource lifecycle events fanned
// out over the internal event bus, replacing the Python original's
// dynamic event object with a typed enum per spec.md §9.
type EventKind int

const (
	EventCreated EventKind = iota + 1
	EventUpdated
	EventDeleted
	EventRetrieved
	EventCreateDirectChild
	EventDeleteDirectChild
)

// Event is the payload fanned out to NotificationManager and
// AnnouncementManager whenever the Dispatcher mutates the tree.
type Event struct {
	Kind      EventKind
	Resource  *Resource
	Parent    *Resource
	Originator string
	// ModifiedAttributes holds the post-update attribute diff, short
	// name -> new value, populated only for EventUpdated.
	ModifiedAttributes map[string]any
	// MissingDataNumber supports reportOnGeneratedMissingDataPoints
	// threshold checks for time-series containers.
	MissingDataNumber int
}

// Operation is the CRUD verb a CSERequest carries.
type Operation int

const (
	OpRetrieve Operation = iota + 1
	OpCreate
	OpUpdate
	OpDelete
	OpNotify
	OpDiscover
)

func (o Operation) Permission() Permission {
	switch o {
	case OpRetrieve:
		return PermRetrieve
	case OpCreate:
		return PermCreate
	case OpUpdate:
		return PermUpdate
	case OpDelete:
		return PermDelete
	case OpNotify:
		return PermNotify
	case OpDiscover:
		return PermDiscover
	default:
		return PermNone
	}
}

// FilterCriteria carries the discovery/retrieve query parameters lifted
// off the wire by the RequestManager (spec.md §4.6).
type FilterCriteria struct {
	ResourceType  []ResourceType
	ContentType   []string
	Labels        []string
	CreatedBefore string
	CreatedAfter  string
	Limit         int
}

// ResultContent (`rcn`) controls what a RETRIEVE/DISCOVER response contains.
type ResultContent int

const (
	RcnAttributes ResultContent = iota + 1
	RcnHierarchicalAddress
	RcnAttributesAndChildResources
	RcnAttributesAndChildResourceReferences
	RcnChildResourceReferences
	RcnOriginalResource
)

// CSERequest is the canonical, binding-agnostic request object produced
// by RequestManager.Dissect and consumed by the Dispatcher.
type CSERequest struct {
	Operation       Operation
	To              string
	From            string // originator
	RequestID       string
	ReleaseVersion  string
	Serialization   string
	ResultContent   ResultContent
	ResponseType    int
	EventCategory   int
	RequestExpiry   string
	ResultExpiry    string
	Filter          FilterCriteria
	ResourceType    ResourceType
	PrimitiveContent map[string]any
	VendorInfo      string
	NotificationURI []string
}
