package sns

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
	"github.com/phone-otp-api/internal/config"
	"github.com/phone-otp-api/internal/domain"
	"github.com/phone-otp-api/internal/infrastructure/awsconf"
)

// Publisher is the part of the SNS client the sender uses.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Sender delivers OTP text messages through SNS direct-to-phone publishing.
type Sender struct {
	client   Publisher
	senderID string
}

func NewSender(ctx context.Context, cfg *config.Config) (*Sender, error) {
	awsCfg, err := awsconf.Load(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, err
	}
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
	return NewSenderWithClient(client, cfg.SNSSenderID), nil
}

func NewSenderWithClient(client Publisher, senderID string) *Sender {
	return &Sender{client: client, senderID: senderID}
}

// SendSMS publishes message to the E.164 number to. Errors the service
// attributes to the request (invalid number, opted out, bad parameters) wrap
// domain.ErrSMSRejected.
func (s *Sender) SendSMS(ctx context.Context, to, message string) error {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType: aws.String("String"), StringValue: aws.String(s.senderID),
		}
	}
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return fmt.Errorf("%s: %w", apiErr.ErrorCode(), domain.ErrSMSRejected)
	}
	return fmt.Errorf("sns publish: %w", err)
}
