// Package model defines the resource tree's core value types: type codes,
// the Resource base, response status codes, and the request/event shapes
// shared across the dispatcher, storage, security, and notification layers.
package model

// ResourceType is the oneM2M type code (`ty`).
type ResourceType int

const (
	TypeUnknown       ResourceType = 0
	TypeAE            ResourceType = 2
	TypeCNT           ResourceType = 3
	TypeCIN           ResourceType = 4
	TypeCSEBase       ResourceType = 5
	TypeGRP           ResourceType = 9
	TypeACP           ResourceType = 1
	TypeSUB           ResourceType = 23
	TypeNOD           ResourceType = 14
	TypeCSR           ResourceType = 16
	TypeMgmtObj       ResourceType = 13
	TypeFCNT          ResourceType = 28
	TypeFCNTAnnc      ResourceType = 10028
	TypeAnncOffset    ResourceType = 10000
	TypeAEAnnc        ResourceType = TypeAE + TypeAnncOffset
	TypeCNTAnnc       ResourceType = TypeCNT + TypeAnncOffset
	TypeACPAnnc       ResourceType = TypeACP + TypeAnncOffset
	TypeNODAnnc       ResourceType = TypeNOD + TypeAnncOffset
	TypeMgmtObjAnnc   ResourceType = TypeMgmtObj + TypeAnncOffset
)

// TypePrefix returns the `tpe` short-name for a type code, e.g. "m2m:cnt".
func (t ResourceType) TypePrefix() string {
	switch t {
	case TypeAE:
		return "m2m:ae"
	case TypeCNT:
		return "m2m:cnt"
	case TypeCIN:
		return "m2m:cin"
	case TypeCSEBase:
		return "m2m:cb"
	case TypeGRP:
		return "m2m:grp"
	case TypeACP:
		return "m2m:acp"
	case TypeSUB:
		return "m2m:sub"
	case TypeNOD:
		return "m2m:nod"
	case TypeCSR:
		return "m2m:csr"
	case TypeMgmtObj:
		return "m2m:mgo"
	case TypeFCNT:
		return "m2m:fcnt"
	case TypeAEAnnc:
		return "m2m:aeA"
	case TypeCNTAnnc:
		return "m2m:cntA"
	case TypeACPAnnc:
		return "m2m:acpA"
	case TypeNODAnnc:
		return "m2m:nodA"
	case TypeMgmtObjAnnc:
		return "m2m:mgoA"
	default:
		return ""
	}
}

// IsAnnounced reports whether ty is an *Annc projection type.
func (t ResourceType) IsAnnounced() bool {
	return t >= TypeAnncOffset
}

// BaseType strips the announcement offset, returning the original type.
func (t ResourceType) BaseType() ResourceType {
	if t.IsAnnounced() {
		return t - TypeAnncOffset
	}
	return t
}

// Permission is the oneM2M ACP operation bitmask.
type Permission int

const (
	PermNone     Permission = 0
	PermCreate   Permission = 1
	PermRetrieve Permission = 2
	PermUpdate   Permission = 4
	PermDelete   Permission = 8
	PermNotify   Permission = 16
	PermDiscover Permission = 32
	PermAll      Permission = PermCreate | PermRetrieve | PermUpdate | PermDelete | PermNotify | PermDiscover
)

// NotificationEventType (`net`) values used for subscription filtering.
type NotificationEventType int

const (
	NetUpdated                  NotificationEventType = 1
	NetDeleted                  NotificationEventType = 2
	NetCreateDirectChild        NotificationEventType = 3
	NetDeleteDirectChild        NotificationEventType = 4
	NetRetrieve                 NotificationEventType = 5
	NetTriggerReceivedForAE     NotificationEventType = 6
	NetBlockingUpdate           NotificationEventType = 7
	NetReportOnGeneratedMissingDataPoints NotificationEventType = 8
)

// NotificationContentType (`nct`) controls notification payload shape.
type NotificationContentType int

const (
	NctAll                    NotificationContentType = 1
	NctModifiedAttributes     NotificationContentType = 2
	NctRi                     NotificationContentType = 3
	NctTimeSeriesNotification NotificationContentType = 4
)

// CSEType is the CSE deployment role.
type CSEType string

const (
	CSETypeIN  CSEType = "IN"
	CSETypeMN  CSEType = "MN"
	CSETypeASN CSEType = "ASN"
)
