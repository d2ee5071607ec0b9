package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// PublishAPI is the subset of the SNS client used here.
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSClient struct {
	client PublishAPI
}

func NewSNSClient(ctx context.Context, region string) (*SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SNSClient{client: sns.NewFromConfig(cfg)}, nil
}

// NewSNSClientWithAPI wraps an existing client, typically a test double.
func NewSNSClientWithAPI(api PublishAPI) *SNSClient {
	return &SNSClient{client: api}
}

func (s *SNSClient) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	return s.client.Publish(ctx, input)
}

// AssignmentEvent announces a newly created founder/advisor assignment.
type AssignmentEvent struct {
	EventType    string `json:"eventType"`
	AssignmentID string `json:"assignmentId"`
	FounderID    string `json:"founderId"`
	AdvisorID    string `json:"advisorId"`
	MatchScore   int    `json:"matchScore"`
	AssignedBy   string `json:"assignedBy"`
}

const AssignmentCreatedEvent = "advisor_assignment_created"

// AssignmentPublisher publishes assignment events to one SNS topic.
type AssignmentPublisher struct {
	sns      *SNSClient
	topicARN string
}

func NewAssignmentPublisher(client *SNSClient, topicARN string) *AssignmentPublisher {
	return &AssignmentPublisher{sns: client, topicARN: topicARN}
}

func (p *AssignmentPublisher) PublishAssignmentCreated(ctx context.Context, event AssignmentEvent) error {
	event.EventType = AssignmentCreatedEvent
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal assignment event: %w", err)
	}

	_, err = p.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String("Advisor assignment created"),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(AssignmentCreatedEvent),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish assignment event: %w", err)
	}
	return nil
}
