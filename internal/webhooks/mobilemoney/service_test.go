package mobilemoneywebhook

import (
	"context"
	"testing"

	"github.com/angelmondragon/sokolink-backend/internal/payments"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/mobilemoney"
)

type stubApplier struct {
	inputs []payments.CallbackInput
}

func (s *stubApplier) ApplyCallback(_ context.Context, in payments.CallbackInput) (*payments.CallbackResult, error) {
	s.inputs = append(s.inputs, in)
	return &payments.CallbackResult{Applied: true}, nil
}

func TestService_HandleCallback(t *testing.T) {
	applier := &stubApplier{}
	service, err := NewService(ServiceParams{Payments: applier})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	payload := []byte(`{"transactionId":"MM-1","status":"SUCCESS"}`)

	if _, err := service.HandleCallback(context.Background(), &mobilemoney.Callback{TransactionID: "MM-1", Status: mobilemoney.StatusSuccess}, payload); err != nil {
		t.Fatalf("handle callback: %v", err)
	}
	in := applier.inputs[0]
	if in.Source != enums.CallbackSourceMobileMoney || in.ProviderReference != "MM-1" || in.Result != payments.ChannelSucceeded {
		t.Fatalf("unexpected callback input %+v", in)
	}
	if in.ExternalEventID != "MM-1:SUCCESS" {
		t.Fatalf("expected derived event id, got %q", in.ExternalEventID)
	}
	if string(in.Payload) != string(payload) {
		t.Fatalf("expected raw payload kept")
	}
}

func TestService_HandleCallbackUsesEventID(t *testing.T) {
	applier := &stubApplier{}
	service, _ := NewService(ServiceParams{Payments: applier})

	cb := &mobilemoney.Callback{EventID: "evt-9", TransactionID: "MM-2", Status: mobilemoney.StatusCancelled, Message: "user dismissed"}
	if _, err := service.HandleCallback(context.Background(), cb, nil); err != nil {
		t.Fatalf("handle callback: %v", err)
	}
	in := applier.inputs[0]
	if in.ExternalEventID != "evt-9" || in.Result != payments.ChannelRejected || in.Detail != "user dismissed" {
		t.Fatalf("unexpected callback input %+v", in)
	}
}

func TestService_HandleCallbackRequiresTransaction(t *testing.T) {
	service, _ := NewService(ServiceParams{Payments: &stubApplier{}})
	if _, err := service.HandleCallback(context.Background(), &mobilemoney.Callback{Status: "SUCCESS"}, nil); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
