package connectors

const (
	TopicConnStatus       = "conn.status"
	TopicDeviceCommand    = "device.command"
	TopicStreamCamera     = "stream.camera"
	TopicStreamMicrophone = "stream.microphone"
	TopicMealLogged       = "meal.logged"
	TopicRawFrameIn       = "raw.frame.in"
	TopicRawFrameOut      = "raw.frame.out"
)
