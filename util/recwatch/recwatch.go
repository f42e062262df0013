// Package recwatch provides file watching events via fsnotify. It watches a
// single directory (non-recursively) and forwards every fsnotify event for
// that directory along with any watcher errors on one channel.
package recwatch

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Event represents a watcher event. These can include errors.
type Event struct {
	Error error
	Body  *fsnotify.Event
}

// RecWatcher is the struct for the directory watcher. Run Init() on it, or
// use NewRecWatcher which does this for you.
type RecWatcher struct {
	// Path is the directory we're watching.
	Path string

	// Opts are the list of options that we are using this with.
	Opts []Option

	options *recwatchOptions // computed options
	watcher *fsnotify.Watcher
	events  chan Event // one channel for events and errors
	closed  bool       // is the events channel closed?
	mutex   sync.Mutex // lock guarding the channel closing
	wg      sync.WaitGroup
	exit    chan struct{}
}

// NewRecWatcher creates and initializes a new watcher on path.
func NewRecWatcher(path string, opts ...Option) (*RecWatcher, error) {
	obj := &RecWatcher{
		Path: path,
		Opts: opts,
	}
	return obj, obj.Init()
}

// Init starts the directory watcher.
func (obj *RecWatcher) Init() error {
	obj.events = make(chan Event)
	obj.exit = make(chan struct{})
	obj.options = &recwatchOptions{ // default recwatch options
		logf: func(format string, v ...interface{}) {
			// noop
		},
	}
	for _, optionFunc := range obj.Opts {
		optionFunc(obj.options)
	}

	var err error
	obj.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Clean(obj.Path)
	if err := obj.watcher.Add(dir); err != nil {
		obj.watcher.Close()
		return fmt.Errorf("can't watch %s: %w", dir, err)
	}

	obj.wg.Add(1)
	go func() {
		defer obj.wg.Done()
		if err := obj.watch(); err != nil {
			// we need this mutex, because if we Init and then Close
			// immediately, this can send after closed which panics!
			obj.mutex.Lock()
			if !obj.closed {
				select {
				case obj.events <- Event{Error: err}:
				case <-obj.exit:
				}
			}
			obj.mutex.Unlock()
		}
	}()
	return nil
}

// Close shuts down the watcher.
func (obj *RecWatcher) Close() error {
	var err error
	close(obj.exit) // send exit signal
	obj.wg.Wait()
	if obj.watcher != nil {
		err = obj.watcher.Close()
		obj.watcher = nil
	}
	obj.mutex.Lock()
	obj.closed = true
	close(obj.events)
	obj.mutex.Unlock()
	return err
}

// Events returns a channel of events. These include events for errors.
func (obj *RecWatcher) Events() chan Event { return obj.events }

// watch is the primary listener loop and it forwards events.
func (obj *RecWatcher) watch() error {
	for {
		select {
		case event, ok := <-obj.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if obj.options.logf != nil {
				obj.options.logf("watch(%s): %v", event.Name, event.Op)
			}
			select {
			case obj.events <- Event{Body: &event}:
			case <-obj.exit:
				return fmt.Errorf("pending event not sent")
			}

		case err, ok := <-obj.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			return fmt.Errorf("unknown watcher error: %v", err)

		case <-obj.exit:
			return nil
		}
	}
}

// Option is a type that can be used to configure the recwatcher.
type Option func(*recwatchOptions)

type recwatchOptions struct {
	logf func(format string, v ...interface{})
}

// Logf passes a logger function that we can use if so desired.
func Logf(logf func(format string, v ...interface{})) Option {
	return func(rwo *recwatchOptions) {
		rwo.logf = logf
	}
}
