package world

// World is the boundary between a net and its environment. Sensor nodes read
// named datasources once per step; actuator nodes write named datatargets
// once per step, after every node has been evaluated.
type World interface {
	Name() string
	DatasourceKeys() []string
	DatatargetKeys() []string
	GetDatasource(key string) float64
	SetDatatarget(key string, value float64)
}

// StepObserver is an optional world capability notified after a net has
// committed a step and flushed its datatargets.
type StepObserver interface {
	StepCompleted(step int)
}
