package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo records calls and returns canned results.
type fakeDynamo struct {
	putErr    error
	updateErr error
	getItem   map[string]types.AttributeValue
	pages     []*dynamodb.QueryOutput

	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	queries []*dynamodb.QueryInput
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	page := f.pages[len(f.queries)-1]
	return page, nil
}

func mustItem(t *testing.T, rec *ImageRecord) map[string]types.AttributeValue {
	t.Helper()
	item, err := recordItem(rec)
	if err != nil {
		t.Fatal(err)
	}
	return item
}

func TestDynamoStore_InsertCreated(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake, "images", "")
	rec := pendingRecord(1, testTime)

	outcome, _, err := s.InsertIfAbsent(context.Background(), rec)
	if err != nil || outcome != Created {
		t.Fatalf("InsertIfAbsent = %v, %v", outcome, err)
	}

	put := fake.puts[0]
	if *put.ConditionExpression != "attribute_not_exists(PK)" {
		t.Errorf("ConditionExpression = %q", *put.ConditionExpression)
	}
	if pk := put.Item["PK"].(*types.AttributeValueMemberS).Value; pk != "IMAGE#"+rec.ContentHash {
		t.Errorf("PK = %q", pk)
	}
	if _, ok := put.Item[attrPending]; !ok {
		t.Error("pending record missing sparse index attribute")
	}
	if n, ok := put.Item["createdAt"].(*types.AttributeValueMemberN); !ok || n.Value == "" {
		t.Errorf("createdAt not numeric: %#v", put.Item["createdAt"])
	}
}

func TestDynamoStore_InsertDuplicate(t *testing.T) {
	existing := pendingRecord(1, testTime)
	fake := &fakeDynamo{
		putErr:  &types.ConditionalCheckFailedException{},
		getItem: mustItem(t, existing),
	}
	s := NewDynamoStore(fake, "images", "")

	dup := pendingRecord(1, testTime)
	dup.OriginalFilename = "other.jpg"
	outcome, got, err := s.InsertIfAbsent(context.Background(), dup)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != AlreadyExists || got.OriginalFilename != existing.OriginalFilename {
		t.Errorf("InsertIfAbsent = %v, %q", outcome, got.OriginalFilename)
	}
}

func TestDynamoStore_InsertError(t *testing.T) {
	fake := &fakeDynamo{putErr: errors.New("throttled")}
	s := NewDynamoStore(fake, "images", "")
	if _, _, err := s.InsertIfAbsent(context.Background(), pendingRecord(1, testTime)); err == nil {
		t.Error("expected error")
	}
}

func TestDynamoStore_GetAbsent(t *testing.T) {
	s := NewDynamoStore(&fakeDynamo{}, "images", "")
	rec, err := s.GetByHash(context.Background(), hashOf(1))
	if rec != nil || err != nil {
		t.Errorf("GetByHash = %v, %v; want nil, nil", rec, err)
	}
}

func TestDynamoStore_Transition(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    int64
		wantErr bool
	}{
		{"success", nil, 1, false},
		{"not pending", &types.ConditionalCheckFailedException{}, 0, false},
		{"service error", errors.New("boom"), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeDynamo{updateErr: tt.err}
			s := NewDynamoStore(fake, "images", "")
			n, err := s.TryTransitionToProcessed(context.Background(), hashOf(1), ProcessedFields{ByteSize: 10})
			if (err != nil) != tt.wantErr || n != tt.want {
				t.Fatalf("transition = %d, %v", n, err)
			}
			cond := *fake.updates[0].ConditionExpression
			if !strings.Contains(cond, "#state = :pending") {
				t.Errorf("ConditionExpression = %q", cond)
			}
		})
	}
}

func TestTransitionExpression(t *testing.T) {
	alt := 12.5
	expr, names, values, err := transitionExpression(ProcessedFields{
		ByteSize:    100,
		Width:       4,
		Height:      3,
		CaptureTime: "2024:06:15 14:00:00",
		GPS:         &GPS{Latitude: 1, Longitude: 2, Altitude: &alt},
		ProcessedAt: 99,
	})
	if err != nil {
		t.Fatal(err)
	}

	set, remove, ok := strings.Cut(expr, " REMOVE ")
	if !ok {
		t.Fatalf("expression has no REMOVE clause: %q", expr)
	}
	for _, want := range []string{"#state = :processed", "#gps = :gps", "#captureTime = :captureTime", "#processedAt = :processedAt"} {
		if !strings.Contains(set, want) {
			t.Errorf("SET clause missing %q: %q", want, set)
		}
	}
	for _, want := range []string{"#pending", "#weather", "#cameraMake", "#cameraModel"} {
		if !strings.Contains(remove, want) {
			t.Errorf("REMOVE clause missing %q: %q", want, remove)
		}
	}
	if strings.Contains(set, "originalFilename") {
		t.Error("empty filename should leave the stored one alone")
	}
	if names["#pending"] != attrPending || names["#state"] != "processingState" {
		t.Errorf("names = %v", names)
	}

	var gps GPS
	if err := attributevalue.Unmarshal(values[":gps"], &gps); err != nil {
		t.Fatal(err)
	}
	if gps.Altitude == nil || *gps.Altitude != alt {
		t.Errorf("gps = %+v", gps)
	}
}

func TestDynamoStore_ListPendingPaginates(t *testing.T) {
	page := func(ns ...int) []map[string]types.AttributeValue {
		var items []map[string]types.AttributeValue
		for _, n := range ns {
			items = append(items, mustItem(t, pendingRecord(n, testTime)))
		}
		return items
	}
	fake := &fakeDynamo{pages: []*dynamodb.QueryOutput{
		{Items: page(1, 2), LastEvaluatedKey: imageKey(hashOf(2))},
		{Items: page(3, 4), LastEvaluatedKey: imageKey(hashOf(4))},
	}}
	s := NewDynamoStore(fake, "images", "custom-index")

	recs, err := s.ListPending(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 || recs[2].ContentHash != hashOf(3) {
		t.Fatalf("ListPending = %d records", len(recs))
	}
	if len(fake.queries) != 2 {
		t.Errorf("queries = %d, want 2", len(fake.queries))
	}
	q := fake.queries[0]
	if *q.IndexName != "custom-index" || !*q.ScanIndexForward {
		t.Errorf("query = index %q forward %v", *q.IndexName, *q.ScanIndexForward)
	}
	if fake.queries[1].ExclusiveStartKey == nil {
		t.Error("second page did not resume from LastEvaluatedKey")
	}
}
