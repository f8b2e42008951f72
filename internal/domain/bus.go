package domain

// Envelope carries one inbound input together with the responder bound to it.
type Envelope struct {
	Input     InputObject
	Responder Responder

	// Done, if set, is called exactly once after the run for this envelope
	// has returned or the envelope was rejected.
	Done func()
}

// Finish calls Done if it is set.
func (e Envelope) Finish() {
	if e.Done != nil {
		e.Done()
	}
}

// MessageBus hands inbound envelopes from channels to the pipeline workers.
type MessageBus interface {
	Publish(env Envelope)
	Subscribe() <-chan Envelope
	Close()
}
