package config

type WorkerKeyStruct struct {
	ViolationEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	ViolationEventsQueue: "violation_events_queue",
}
