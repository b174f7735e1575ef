package probe

// Logger receives human-readable status lines from the prober.
type Logger interface {
	Log(message string)
}

// LoggerFunc adapts a plain function to Logger.
type LoggerFunc func(message string)

func (f LoggerFunc) Log(message string) { f(message) }

type nopLogger struct{}

func (nopLogger) Log(string) {}
