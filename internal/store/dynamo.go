package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
//
// Each image is one item: PK = IMAGE#{hash}, SK = META. While an image is
// pending it also carries pendingPK = PENDING, which places it in the sparse
// pending index (partition pendingPK, sort createdAt). The transition to
// processed removes the attribute, so the index only ever holds work.
const (
	pkPrefix     = "IMAGE#"
	skMeta       = "META"
	pendingValue = "PENDING"
	attrPending  = "pendingPK"

	// DefaultPendingIndex is the GSI name used when none is configured.
	DefaultPendingIndex = "pending-createdAt-index"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore implements RecordStore using AWS DynamoDB.
type DynamoStore struct {
	client       DynamoAPI
	tableName    string
	pendingIndex string
}

// Compile-time interface check.
var _ RecordStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table and pending index.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client DynamoAPI, tableName, pendingIndex string) *DynamoStore {
	if pendingIndex == "" {
		pendingIndex = DefaultPendingIndex
	}
	return &DynamoStore{
		client:       client,
		tableName:    tableName,
		pendingIndex: pendingIndex,
	}
}

// --- Internal helpers ---

// imagePK returns the partition key for an image.
func imagePK(hash string) string {
	return pkPrefix + hash
}

func imageKey(hash string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: imagePK(hash)},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}
}

// recordItem marshals rec with its key attributes. Pending records also get
// the sparse index attribute.
func recordItem(rec *ImageRecord) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	for k, v := range imageKey(rec.ContentHash) {
		item[k] = v
	}
	if rec.State == StatePending {
		item[attrPending] = &types.AttributeValueMemberS{Value: pendingValue}
	}
	return item, nil
}

func unmarshalRecord(item map[string]types.AttributeValue) (*ImageRecord, error) {
	var rec ImageRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal image: %w", err)
	}
	return &rec, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// --- RecordStore ---

func (s *DynamoStore) InsertIfAbsent(ctx context.Context, rec *ImageRecord) (InsertOutcome, *ImageRecord, error) {
	item, err := recordItem(rec)
	if err != nil {
		return 0, nil, err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err == nil {
		log.Debug().Str("hash", rec.ContentHash).Msg("Image record created")
		return Created, rec, nil
	}
	if !isConditionFailed(err) {
		return 0, nil, fmt.Errorf("PutItem PK=%s: %w", imagePK(rec.ContentHash), err)
	}

	existing, err := s.GetByHash(ctx, rec.ContentHash)
	if err != nil {
		return 0, nil, err
	}
	if existing == nil {
		return 0, nil, fmt.Errorf("PutItem PK=%s: condition failed but item missing", imagePK(rec.ContentHash))
	}
	return AlreadyExists, existing, nil
}

func (s *DynamoStore) GetByHash(ctx context.Context, hash string) (*ImageRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            imageKey(hash),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s: %w", imagePK(hash), err)
	}
	if result.Item == nil {
		return nil, nil
	}
	return unmarshalRecord(result.Item)
}

func (s *DynamoStore) ListPending(ctx context.Context, limit int) ([]*ImageRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              &s.pendingIndex,
		KeyConditionExpression: aws.String("#p = :p"),
		ExpressionAttributeNames: map[string]string{
			"#p": attrPending,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: pendingValue},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var out []*ImageRecord

	// Handle pagination: DynamoDB returns up to 1MB per Query call.
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query %s: %w", s.pendingIndex, err)
		}
		for _, item := range result.Items {
			rec, err := unmarshalRecord(item)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return out, nil
}

func (s *DynamoStore) TryTransitionToProcessed(ctx context.Context, hash string, f ProcessedFields) (int64, error) {
	expr, names, values, err := transitionExpression(f)
	if err != nil {
		return 0, err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       imageKey(hash),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(PK) AND #state = :pending"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailed(err) {
			log.Debug().Str("hash", hash).Msg("Transition skipped: record not pending")
			return 0, nil
		}
		return 0, fmt.Errorf("UpdateItem PK=%s: %w", imagePK(hash), err)
	}
	return 1, nil
}

// transitionExpression builds the SET/REMOVE expression for a transition.
// Optional fields that are absent are removed so a record never keeps stale
// values from an earlier write.
func transitionExpression(f ProcessedFields) (string, map[string]string, map[string]types.AttributeValue, error) {
	names := map[string]string{
		"#state":   "processingState", // avoid reserved-word collisions
		"#pending": attrPending,
	}
	values := map[string]types.AttributeValue{
		":pending":   &types.AttributeValueMemberS{Value: string(StatePending)},
		":processed": &types.AttributeValueMemberS{Value: string(StateProcessed)},
	}
	sets := []string{"#state = :processed"}
	removes := []string{"#pending"}

	set := func(attr string, v interface{}) error {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", attr, err)
		}
		names["#"+attr] = attr
		values[":"+attr] = av
		sets = append(sets, "#"+attr+" = :"+attr)
		return nil
	}
	optional := func(attr string, present bool, v interface{}) error {
		if !present {
			names["#"+attr] = attr
			removes = append(removes, "#"+attr)
			return nil
		}
		return set(attr, v)
	}

	if f.OriginalFilename != "" {
		if err := set("originalFilename", f.OriginalFilename); err != nil {
			return "", nil, nil, err
		}
	}
	steps := []struct {
		attr    string
		present bool
		v       interface{}
	}{
		{"byteSize", true, f.ByteSize},
		{"width", f.Width != 0, f.Width},
		{"height", f.Height != 0, f.Height},
		{"captureTime", f.CaptureTime != "", f.CaptureTime},
		{"gps", f.GPS != nil, f.GPS},
		{"weather", f.Weather != nil, f.Weather},
		{"cameraMake", f.CameraMake != "", f.CameraMake},
		{"cameraModel", f.CameraModel != "", f.CameraModel},
		{"processedAt", f.ProcessedAt != 0, f.ProcessedAt},
	}
	for _, st := range steps {
		if err := optional(st.attr, st.present, st.v); err != nil {
			return "", nil, nil, err
		}
	}

	expr := "SET " + strings.Join(sets, ", ") + " REMOVE " + strings.Join(removes, ", ")
	return expr, names, values, nil
}
