package logging

import (
	"encoding/json"
	"log"
	"time"
)

// Fields is the set of structured keys we log across the billing service.
// Empty fields are omitted from the output line.
type Fields struct {
	Service string `json:"service"`
	OrderID string `json:"order_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Tenant  string `json:"tenant_id,omitempty"`
	Step    string `json:"step,omitempty"`
	Status  string `json:"status,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Log writes one JSON line to the standard logger.
func Log(fields Fields) {
	payload := map[string]any{
		"service":   fields.Service,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	add := func(k, v string) {
		if v != "" {
			payload[k] = v
		}
	}
	add("order_id", fields.OrderID)
	add("user_id", fields.UserID)
	add("tenant_id", fields.Tenant)
	add("step", fields.Step)
	add("status", fields.Status)
	add("amount", fields.Amount)
	add("message", fields.Message)
	add("error", fields.Error)

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("{\"service\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Service, err.Error())
		return
	}
	log.Print(string(data))
}

// Logger is a named logger bound to one service/component.
type Logger struct {
	service string
}

func New(service string) *Logger {
	return &Logger{service: service}
}

func (l *Logger) Info(f Fields) {
	f.Service = l.service
	if f.Status == "" {
		f.Status = "info"
	}
	Log(f)
}

func (l *Logger) Warn(f Fields) {
	f.Service = l.service
	f.Status = "warn"
	Log(f)
}

func (l *Logger) Error(f Fields, err error) {
	f.Service = l.service
	f.Status = "error"
	if err != nil {
		f.Error = err.Error()
	}
	Log(f)
}
