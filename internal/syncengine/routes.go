package syncengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mrlokans/caresync/internal/entities"
)

// route maps an entity kind onto the remote REST contract.
type route struct {
	collection string

	// parentField carries the parent's remote id in create bodies.
	parentField string

	// envelope is the key wrapping the created object in responses.
	envelope string
}

var routes = map[entities.Kind]route{
	entities.KindPatient: {
		collection: "/sync/patients",
		envelope:   "patient",
	},
	entities.KindTreatmentPlan: {
		collection:  "/treatment-plans",
		parentField: "patient_id",
		envelope:    "treatment_plan",
	},
	entities.KindPlanStep: {
		collection:  "/plan-steps",
		parentField: "plan_id",
		envelope:    "plan_step",
	},
}

func (r route) item(remoteID string) string {
	return r.collection + "/" + url.PathEscape(remoteID)
}

// extractRemoteID reads the new id from {<envelope>: {id}}, {data: {id}} or {id}.
// Numeric and string ids are both accepted.
func extractRemoteID(body []byte, envelope string) (string, error) {
	var top map[string]json.RawMessage
	if err := decodeNumbers(body, &top); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}

	for _, key := range []string{envelope, "data"} {
		raw, ok := top[key]
		if !ok {
			continue
		}
		var inner map[string]json.RawMessage
		if err := decodeNumbers(raw, &inner); err != nil {
			continue
		}
		if id, ok := idValue(inner["id"]); ok {
			return id, nil
		}
	}

	if id, ok := idValue(top["id"]); ok {
		return id, nil
	}
	return "", errNoRemoteIDInResponse
}

func idValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var v any
	if err := decodeNumbers(raw, &v); err != nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	}
	return "", false
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
