package devices

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"

	"rockboxd/pkg/models"
)

// Discovery periodically browses mDNS for cast devices and the rockbox
// native service, materializing answers into the registry. It also
// advertises the local HTTP surface under the native service name.
type Discovery struct {
	registry    *Registry
	castSvc     string
	nativeSvc   string
	logger      *logrus.Logger
	server      *mdns.Server
	stop        chan struct{}
	stopped     chan struct{}
	pollEvery   time.Duration
	lookupEvery time.Duration
}

// NewDiscovery creates a discovery browser for the two service names.
func NewDiscovery(registry *Registry, castService, nativeService string, logger *logrus.Logger) *Discovery {
	if logger == nil {
		logger = logrus.New()
	}
	return &Discovery{
		registry:    registry,
		castSvc:     castService,
		nativeSvc:   nativeService,
		logger:      logger,
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
		pollEvery:   15 * time.Second,
		lookupEvery: 3 * time.Second,
	}
}

// Advertise registers the local HTTP surface under the native service name.
// Advertisement failures are logged, never fatal.
func (d *Discovery) Advertise(instance string, port int) {
	host, err := os.Hostname()
	if err != nil {
		host = "rockboxd"
	}
	service, err := mdns.NewMDNSService(instance, d.nativeSvc, "", "", port, nil,
		[]string{"app=rockbox"})
	if err != nil {
		d.logger.WithError(err).Warn("Could not build mDNS advertisement")
		return
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		d.logger.WithError(err).WithField("host", host).Warn("Could not start mDNS advertisement")
		return
	}
	d.server = server
	d.logger.WithFields(logrus.Fields{"service": d.nativeSvc, "port": port}).Info("Advertising on mDNS")
}

// Start launches the discovery loop.
func (d *Discovery) Start() {
	go d.loop()
}

func (d *Discovery) loop() {
	defer close(d.stopped)

	ticker := time.NewTicker(d.pollEvery)
	defer ticker.Stop()

	d.browseOnce()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.browseOnce()
		}
	}
}

func (d *Discovery) browseOnce() {
	d.browse(d.castSvc, true)
	d.browse(d.nativeSvc, false)
}

// browse runs one mDNS query for a service and inserts every answer.
func (d *Discovery) browse(service string, cast bool) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			d.registry.Insert(entryToDevice(entry, service, cast))
		}
	}()

	params := mdns.DefaultParams(service)
	params.Entries = entries
	params.Timeout = d.lookupEvery
	params.DisableIPv6 = true
	if err := mdns.Query(params); err != nil {
		d.logger.WithError(err).WithField("service", service).Debug("mDNS query failed")
	}
	close(entries)
	<-done
}

// Close stops the browser and the advertisement.
func (d *Discovery) Close() {
	close(d.stop)
	<-d.stopped
	if d.server != nil {
		d.server.Shutdown()
	}
}

// entryToDevice maps an mDNS answer to a Device. The fullname is the
// registry identity.
func entryToDevice(entry *mdns.ServiceEntry, service string, cast bool) models.Device {
	ip := ""
	if entry.AddrV4 != nil {
		ip = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		ip = entry.AddrV6.String()
	}

	name := entry.Name
	app := ""
	for _, field := range entry.InfoFields {
		if v, ok := strings.CutPrefix(field, "fn="); ok {
			name = v
		}
		if v, ok := strings.CutPrefix(field, "md="); ok {
			app = v
		}
		if v, ok := strings.CutPrefix(field, "app="); ok {
			app = v
		}
	}

	dev := models.Device{
		ID:             entry.Name,
		Name:           name,
		Host:           entry.Host,
		IP:             ip,
		Port:           entry.Port,
		Service:        service,
		App:            app,
		IsCastDevice:   cast,
		IsSourceDevice: !cast,
	}
	if !cast && ip != "" {
		dev.BaseURL = fmt.Sprintf("http://%s:%d", ip, entry.Port)
	}
	return dev
}
