package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/twpayne/go-polyline"

	"taxi-revenue/internal/revenue"
	"taxi-revenue/internal/segment"
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

type NATSPublisher struct {
	nc          conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("taxi-revenue"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return newPublisher(nc, prefix, logSubjects, m), nil
}

func newPublisher(nc conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	if prefix == "" {
		prefix = "trips"
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// TripMessage is the event emitted for every reconstructed trip. Path is the
// start and end position as an encoded polyline.
type TripMessage struct {
	VehicleID    int       `json:"vehicleId"`
	Start        time.Time `json:"start"`
	Hours        float64   `json:"hours"`
	DistanceKm   float64   `json:"distanceKm"`
	Segments     int       `json:"segments"`
	Occupied     bool      `json:"occupied"`
	TooFast      bool      `json:"tooFast"`
	NearLandmark bool      `json:"nearLandmark"`
	Valid        bool      `json:"valid"`
	Fare         float64   `json:"fare"`
	Path         string    `json:"path"`
}

func NewTripMessage(s segment.Segment) TripMessage {
	msg := TripMessage{
		VehicleID:    s.VehicleID,
		Start:        s.StartTime,
		Hours:        s.Hours,
		DistanceKm:   s.DistanceKm,
		Segments:     s.Segments,
		Occupied:     s.Occupied,
		TooFast:      s.TooFast,
		NearLandmark: s.NearLandmark,
		Valid:        revenue.Valid(s),
		Path: string(polyline.EncodeCoords([][]float64{
			{s.StartLat, s.StartLon},
			{s.EndLat, s.EndLon},
		})),
	}
	if msg.Valid {
		msg.Fare = revenue.Fare(s)
	}
	return msg
}

// PublishTrip sends msg on <prefix>.<vehicleId>.
func (p *NATSPublisher) PublishTrip(msg TripMessage) error {
	subject := fmt.Sprintf("%s.%s", p.prefix, subjectToken(strconv.Itoa(msg.VehicleID)))
	return p.publish(subject, msg)
}

// PublishSummary sends the revenue total on <prefix>.revenue.
func (p *NATSPublisher) PublishSummary(sum revenue.Summary) error {
	return p.publish(p.prefix+".revenue", sum)
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
