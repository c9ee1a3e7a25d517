// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package validation

import (
	"strings"
	"testing"

	"github.com/tomtom215/roomlink/internal/conversation"
	"github.com/tomtom215/roomlink/internal/models"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 == nil || v1 != v2 {
		t.Error("GetValidator() should return the same non-nil instance")
	}
}

func validDraft() models.MessageDraft {
	return models.MessageDraft{
		ListingID:  "L1",
		StudentID:  "S1",
		AgencyID:   "A1",
		SenderID:   "S1",
		SenderRole: models.RoleStudent,
		Body:       "Is the room still available?",
	}
}

func TestValidateStruct_MessageDraft(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*models.MessageDraft)
		wantField string
		wantTag   string
	}{
		{name: "valid", mutate: func(*models.MessageDraft) {}},
		{
			name:      "missing body",
			mutate:    func(d *models.MessageDraft) { d.Body = "" },
			wantField: "body",
			wantTag:   "required",
		},
		{
			name:      "blank body",
			mutate:    func(d *models.MessageDraft) { d.Body = "   " },
			wantField: "body",
			wantTag:   "nonblank",
		},
		{
			name:      "unknown role",
			mutate:    func(d *models.MessageDraft) { d.SenderRole = "landlord" },
			wantField: "sender_role",
			wantTag:   "oneof",
		},
		{
			name:      "body too long",
			mutate:    func(d *models.MessageDraft) { d.Body = strings.Repeat("x", 4001) },
			wantField: "body",
			wantTag:   "max",
		},
		{
			name:      "negative price",
			mutate:    func(d *models.MessageDraft) { d.ListingPrice = -1 },
			wantField: "listing_price",
			wantTag:   "gte",
		},
		{
			name:      "malformed conversation id",
			mutate:    func(d *models.MessageDraft) { d.ConversationID = "L1_S1" },
			wantField: "conversation_id",
			wantTag:   "convkey",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)

			verr := ValidateStruct(&d)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), verr)
			}
			if errs[0].Field() != tt.wantField || errs[0].Tag() != tt.wantTag {
				t.Errorf("error = %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestValidateStruct_ConversationKey(t *testing.T) {
	type frame struct {
		ConversationID string `json:"conversation_id" validate:"required,convkey"`
	}

	if verr := ValidateStruct(&frame{ConversationID: conversation.Resolve("L1", "S1")}); verr != nil {
		t.Errorf("resolved key rejected: %v", verr)
	}
	if verr := ValidateStruct(&frame{ConversationID: "c1:9:L1:S1"}); verr == nil {
		t.Error("truncated key accepted")
	}
}

func TestToAPIError(t *testing.T) {
	d := validDraft()
	d.Body = ""
	d.SenderRole = ""

	verr := ValidateStruct(&d)
	if verr == nil {
		t.Fatal("expected validation errors")
	}

	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "body is required") || !strings.Contains(apiErr.Message, "sender_role is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Errorf("Details[fields] = %v", apiErr.Details["fields"])
	}

	single := validDraft()
	single.Body = ""
	one := ValidateStruct(&single).ToAPIError()
	if one.Message != "body is required" || one.Details["field"] != "body" {
		t.Errorf("single ToAPIError() = %+v", one)
	}
}
