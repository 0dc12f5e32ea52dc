package eventbus

const (
	RelationshipChanged                  = "transport.relationshipChanged"
	RelationshipDecomposedBySelf         = "transport.relationshipDecomposedBySelf"
	RelationshipReactivationRequested    = "transport.relationshipReactivationRequested"
	RelationshipReactivationCompleted    = "transport.relationshipReactivationCompleted"
	PeerToBeDeleted                      = "transport.peerToBeDeleted"
	PeerDeletionCancelled                = "transport.peerDeletionCancelled"
	PeerDeleted                          = "transport.peerDeleted"
	MessageReceived                      = "transport.messageReceived"
	MessageDelivered                     = "transport.messageDelivered"
	IdentityDeletionProcessStatusChanged = "transport.identityDeletionProcessStatusChanged"
	FileOwnershipClaimed                 = "transport.fileOwnershipClaimed"
	FileOwnershipLocked                  = "transport.fileOwnershipLocked"
	DatawalletSynchronized               = "transport.datawalletSynchronized"

	AttributeCreated    = "consumption.attributeCreated"
	AttributeSucceeded  = "consumption.attributeSucceeded"
	AttributeDeleted    = "consumption.attributeDeleted"
	AttributeChanged    = "consumption.attributeChanged"
	RequestChanged      = "consumption.requestChanged"
	NotificationChanged = "consumption.notificationChanged"
	SettingCreated      = "consumption.settingCreated"
	SettingChanged      = "consumption.settingChanged"
	SettingDeleted      = "consumption.settingDeleted"
	FileChanged         = "consumption.fileChanged"
	DeviceRegistered    = "consumption.deviceRegistered"
)
