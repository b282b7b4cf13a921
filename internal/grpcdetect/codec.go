package grpcdetect

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/plant-scan/internal/detection"
)

func encodeRequest(req detection.Request) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"image": base64.StdEncoding.EncodeToString(req.Image),
	}
	if req.Location != nil {
		fields["latitude"] = req.Location.Latitude
		fields["longitude"] = req.Location.Longitude
		if req.Location.Address != "" {
			fields["address"] = req.Location.Address
		}
	}
	if !req.CapturedAt.IsZero() {
		fields["captured_at"] = req.CapturedAt.UTC().Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(fields)
}

func decodeRequest(in *structpb.Struct) (detection.Request, error) {
	var req detection.Request
	fields := in.GetFields()

	encoded := fields["image"].GetStringValue()
	if encoded == "" {
		return req, errors.New("image is required")
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return req, fmt.Errorf("image is not base64: %w", err)
	}
	req.Image = image

	lat, hasLat := fields["latitude"]
	lon, hasLon := fields["longitude"]
	if hasLat && hasLon {
		req.Location = &detection.Location{
			Latitude:  lat.GetNumberValue(),
			Longitude: lon.GetNumberValue(),
			Address:   fields["address"].GetStringValue(),
		}
	}

	if raw := fields["captured_at"].GetStringValue(); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return req, fmt.Errorf("captured_at: %w", err)
		}
		req.CapturedAt = ts
	}
	return req, nil
}

// Records travel as the same JSON object the HTTP endpoint returns.
func encodeRecord(rec *detection.Record) (*structpb.Struct, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

func decodeRecord(out *structpb.Struct) (*detection.Record, error) {
	raw, err := json.Marshal(out.AsMap())
	if err != nil {
		return nil, err
	}
	var rec detection.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
