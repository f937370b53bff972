// Package chromecast casts to Chromecast receivers over the CAST v2
// protocol via github.com/barnybug/go-cast, a library whose client is
// synchronous and not safe for concurrent use — every call against one
// connection must come from the same goroutine. Grounded on
// castbot/devices/chromecast.py's single ThreadPoolExecutor(max_workers=1),
// adapted to Go's single-worker-goroutine idiom, the same "one slot"
// resource-gate shape as the teacher's IOLimiter semaphore
// (internal/media/limiter.go) but guarding a worker instead of N readers.
package chromecast

import (
	"context"
	"fmt"
	"net"
	"sync"

	gocast "github.com/barnybug/go-cast"
	castctx "github.com/barnybug/go-cast/controllers"

	"streamer/internal/device"
	"streamer/internal/token"
)

// worker serializes every call against one *gocast.Client onto a single
// goroutine, since the underlying library cannot tolerate concurrent use.
type worker struct {
	tasks chan func()
	once  sync.Once
	done  chan struct{}
}

func newWorker() *worker {
	w := &worker{tasks: make(chan func(), 8), done: make(chan struct{})}
	go w.run()
	return w
}

func (w *worker) run() {
	defer close(w.done)
	for task := range w.tasks {
		task()
	}
}

func (w *worker) do(fn func() error) error {
	result := make(chan error, 1)
	w.tasks <- func() { result <- fn() }
	return <-result
}

func (w *worker) close() {
	w.once.Do(func() { close(w.tasks) })
}

// Device casts to one Chromecast receiver.
type Device struct {
	name   string
	ip     net.IP
	port   int
	worker *worker

	mu     sync.Mutex
	client *gocast.Client
}

func newDevice(name string, ip net.IP, port int) *Device {
	return &Device{name: name, ip: ip, port: port, worker: newWorker()}
}

func (d *Device) Name() string { return d.name }

func (d *Device) connectLocked(ctx context.Context) error {
	if d.client != nil {
		return nil
	}
	client := gocast.NewClient(d.ip, d.port)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("chromecast: connect: %w", err)
	}
	d.client = client
	return nil
}

// Stop is a deliberate no-op: the source's ChromecastDevice.stop() is a
// no-op too, since catt's play_url already replaces whatever was playing
// and the cast is actually torn down in OnClose instead.
func (d *Device) Stop(ctx context.Context) error {
	return nil
}

// Play connects if needed and loads url on the default media receiver app.
func (d *Device) Play(ctx context.Context, url, title string, tok token.LocalToken) error {
	return d.worker.do(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()

		if err := d.connectLocked(ctx); err != nil {
			return err
		}

		media, err := d.client.Media(ctx)
		if err != nil {
			return fmt.Errorf("chromecast: media controller: %w", err)
		}

		item := castctx.MediaItem{
			ContentId:   url,
			StreamType:  "BUFFERED",
			ContentType: "video/mp4",
			Metadata: map[string]interface{}{
				"metadataType": 0,
				"title":        title,
			},
		}

		_, err = media.LoadMedia(ctx, item, 0, true, map[string]interface{}{})
		if err != nil {
			return fmt.Errorf("chromecast: load media: %w", err)
		}
		return nil
	})
}

// Pause satisfies device.Pauser.
func (d *Device) Pause(ctx context.Context) error {
	return d.worker.do(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.client == nil {
			return fmt.Errorf("chromecast: not connected")
		}
		media, err := d.client.Media(ctx)
		if err != nil {
			return err
		}
		_, err = media.Pause(ctx)
		return err
	})
}

// Resume satisfies device.Resumer.
func (d *Device) Resume(ctx context.Context) error {
	return d.worker.do(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.client == nil {
			return fmt.Errorf("chromecast: not connected")
		}
		media, err := d.client.Media(ctx)
		if err != nil {
			return err
		}
		_, err = media.Play(ctx)
		return err
	})
}

// OnClose is where the cast actually stops: the underlying connection is
// closed and the worker goroutine retired.
func (d *Device) OnClose(ctx context.Context, tok token.LocalToken) {
	d.worker.do(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.client != nil {
			d.client.Close()
			d.client = nil
		}
		return nil
	})
	d.worker.close()
}
