package evloop

import "github.com/sirupsen/logrus"

// Option configures an EventLoop or Pool at construction time. This is
// the functional-options substitute for a config file/CLI surface: spec
// §6 rules out a process boundary, so there is nothing for a config
// library to parse.
type Option func(*loopConfig)

type loopConfig struct {
	timer    Timer
	log      logrus.FieldLogger
	poolSize int
}

func defaultLoopConfig() *loopConfig {
	return &loopConfig{
		timer: defaultTimer,
		log:   logrus.StandardLogger(),
	}
}

// WithTimer overrides the Timer (§6) used for deadline arithmetic, e.g.
// to inject a fake clock in tests.
func WithTimer(t Timer) Option {
	return func(c *loopConfig) { c.timer = t }
}

// WithLogger overrides the logrus.FieldLogger this loop/pool logs
// through. Defaults to logrus's standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *loopConfig) { c.log = log }
}

// WithPoolSize overrides the pool's loop count (defaults to
// runtime.NumCPU()). Only meaningful when passed to NewPool.
func WithPoolSize(n int) Option {
	return func(c *loopConfig) { c.poolSize = n }
}
