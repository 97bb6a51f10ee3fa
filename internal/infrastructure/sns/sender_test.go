package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
	"github.com/phone-otp-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	return &sns.PublishOutput{}, args.Error(0)
}

func TestSendSMS_SetsPhoneAndSenderID(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		sid, ok := in.MessageAttributes["AWS.SNS.SMS.SenderID"]
		return *in.PhoneNumber == "+15550001111" &&
			*in.Message == "hello" &&
			ok && *sid.StringValue == "ACME"
	})).Return(nil)

	s := NewSenderWithClient(p, "ACME")
	require.NoError(t, s.SendSMS(context.Background(), "+15550001111", "hello"))
	p.AssertExpectations(t)
}

func TestSendSMS_NoSenderID_OmitsAttribute(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		_, ok := in.MessageAttributes["AWS.SNS.SMS.SenderID"]
		return !ok
	})).Return(nil)

	s := NewSenderWithClient(p, "")
	require.NoError(t, s.SendSMS(context.Background(), "+15550001111", "hello"))
}

func TestSendSMS_ClientFault_IsRejected(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(&types.InvalidParameterException{Message: stringPtr("bad number")})

	err := NewSenderWithClient(p, "").SendSMS(context.Background(), "+1", "hello")
	assert.ErrorIs(t, err, domain.ErrSMSRejected)
}

func TestSendSMS_ServerFault_IsNotRejected(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(&smithy.GenericAPIError{Code: "InternalError", Fault: smithy.FaultServer})

	err := NewSenderWithClient(p, "").SendSMS(context.Background(), "+15550001111", "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSMSRejected)
}

func TestSendSMS_TransportError_IsNotRejected(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(errors.New("dial tcp: timeout"))

	err := NewSenderWithClient(p, "").SendSMS(context.Background(), "+15550001111", "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSMSRejected)
}

func stringPtr(s string) *string { return &s }
