package booking

// Names of the signals the scheduling core emits toward the UI.
const (
	SignalSlotSelected        = "slotSelected"
	SignalAppointmentSelected = "appointmentSelected"
	SignalCalendarEvents      = "calendarEvents"
	SignalWizardStepChanged   = "wizardStepChanged"
	SignalWizardSubmitted     = "wizardSubmitted"
)

// Signal is a notification emitted by a calendar or wizard instance.
type Signal interface {
	SignalName() string
}

// Publisher receives signals. Implementations must not block and must not
// call back into the emitting component.
type Publisher interface {
	Publish(sig Signal)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(sig Signal)

func (f PublisherFunc) Publish(sig Signal) { f(sig) }

// Discard drops every signal.
var Discard Publisher = PublisherFunc(func(Signal) {})
