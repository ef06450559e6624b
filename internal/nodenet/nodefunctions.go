package nodenet

const (
	NeuronType    = "Neuron"
	PipeType      = "Pipe"
	ActivatorType = "Activator"
	SensorType    = "Sensor"
	ActuatorType  = "Actuator"
)

// Channel names shared by Pipe slots and gates.
const (
	ChannelGen = "gen"
	ChannelPor = "por"
	ChannelRet = "ret"
	ChannelSub = "sub"
	ChannelSur = "sur"
	ChannelCat = "cat"
	ChannelExp = "exp"
)

const (
	ParamWait          = "wait"
	ParamExpectation   = "expectation"
	ParamActivatorType = "type"
	ParamDatasource    = "datasource"
	ParamDatatarget    = "datatarget"
)

var pipeChannels = []string{ChannelGen, ChannelPor, ChannelRet, ChannelSub, ChannelSur, ChannelCat, ChannelExp}

func builtinNodeTypes() []NodeType {
	return []NodeType{
		{
			Name:  NeuronType,
			Slots: []string{ChannelGen},
			Gates: []string{ChannelGen},
			Func:  neuronFunc,
		},
		{
			Name:  PipeType,
			Slots: append([]string(nil), pipeChannels...),
			Gates: append([]string(nil), pipeChannels...),
			Parameters: map[string]string{
				ParamWait:        "10",
				ParamExpectation: "1",
			},
			Modulated: true,
			Func:      pipeFunc,
		},
		{
			Name:       ActivatorType,
			Slots:      []string{ChannelGen},
			Gates:      []string{ChannelGen},
			Parameters: map[string]string{ParamActivatorType: ""},
			Func:       neuronFunc,
		},
		{
			Name:       SensorType,
			Gates:      []string{ChannelGen},
			Parameters: map[string]string{ParamDatasource: ""},
			Func:       sensorFunc,
		},
		{
			Name:       ActuatorType,
			Slots:      []string{ChannelGen},
			Gates:      []string{ChannelGen},
			Parameters: map[string]string{ParamDatatarget: ""},
			Func:       actuatorFunc,
		},
	}
}

func neuronFunc(a *Activation) error {
	a.SetGate(ChannelGen, a.Slot(ChannelGen))
	return nil
}

func sensorFunc(a *Activation) error {
	a.SetGate(ChannelGen, a.Datasource(a.Param(ParamDatasource)))
	return nil
}

func actuatorFunc(a *Activation) error {
	v := a.Slot(ChannelGen)
	a.SetGate(ChannelGen, v)
	a.SetDatatarget(a.Param(ParamDatatarget), v)
	return nil
}
