package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Service    string `json:"service"`
	RequestID  string `json:"request_id,omitempty"`
	BuyerID    string `json:"buyer_id,omitempty"`
	SellerID   string `json:"seller_id,omitempty"`
	ListingID  int64  `json:"listing_id,omitempty"`
	OrderID    int64  `json:"order_id,omitempty"`
	Step       string `json:"step,omitempty"`
	Status     string `json:"status,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

var service = "marketplace"

// SetService names the emitting service on every line that does not set its own.
func SetService(name string) {
	if name != "" {
		service = name
	}
}

type line struct {
	Fields
	Timestamp string `json:"timestamp"`
}

func Log(fields Fields) {
	if fields.Service == "" {
		fields.Service = service
	}
	data, err := json.Marshal(line{Fields: fields, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		log.Printf("{\"service\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Service, err.Error())
		return
	}
	log.Print(string(data))
}

// Since returns the elapsed milliseconds for Fields.DurationMS.
func Since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
