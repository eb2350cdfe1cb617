package kv

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoConfig names the two tables the backend uses. Both are plain
// tables keyed by a string partition key "pk" with no sort key.
type DynamoConfig struct {
	ObjectTable string
	BranchTable string
}

// DynamoStore and DynamoBranches keep a repository in DynamoDB.
// Objects are write-once items guarded by attribute_not_exists; branch
// heads use conditional expressions for compare-and-swap, which holds
// across processes, not just within one.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

type DynamoBranches struct {
	client *dynamodb.Client
	table  string
}

// OpenDynamo returns backends over the configured tables. The client
// comes from the caller so credential and region handling stays in one
// place.
func OpenDynamo(client *dynamodb.Client, cfg DynamoConfig) (*DynamoStore, *DynamoBranches, error) {
	if cfg.ObjectTable == "" || cfg.BranchTable == "" {
		return nil, nil, fmt.Errorf("kv: dynamo tables not configured")
	}
	return &DynamoStore{client: client, table: cfg.ObjectTable},
		&DynamoBranches{client: client, table: cfg.BranchTable}, nil
}

func (s *DynamoStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            pkAttr(hex.EncodeToString(key)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamo get: %w", err)
	}
	if result.Item == nil {
		return nil, false, nil
	}
	data, ok := result.Item["data"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false, fmt.Errorf("dynamo get: object %x has no data", key)
	}
	return data.Value, true, nil
}

func (s *DynamoStore) Put(ctx context.Context, key, value []byte) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"pk":   &types.AttributeValueMemberS{Value: hex.EncodeToString(key)},
			"data": &types.AttributeValueMemberB{Value: value},
		},
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	// The key already holding identical bytes is the write-once no-op.
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dynamo put: %w", err)
	}
	return nil
}

func (s *DynamoStore) Mem(ctx context.Context, key []byte) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.table),
		Key:                  pkAttr(hex.EncodeToString(key)),
		ProjectionExpression: aws.String("pk"),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("dynamo mem: %w", err)
	}
	return result.Item != nil, nil
}

func (b *DynamoBranches) Read(ctx context.Context, name string) ([]byte, bool, error) {
	result, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            pkAttr(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamo read branch: %w", err)
	}
	if result.Item == nil {
		return nil, false, nil
	}
	head, ok := result.Item["head"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false, fmt.Errorf("dynamo read branch: %q has no head", name)
	}
	return head.Value, true, nil
}

func (b *DynamoBranches) Update(ctx context.Context, name string, old, head []byte) error {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(b.table),
		Item: map[string]types.AttributeValue{
			"pk":   &types.AttributeValueMemberS{Value: name},
			"head": &types.AttributeValueMemberB{Value: head},
		},
	}
	if old == nil {
		input.ConditionExpression = aws.String("attribute_not_exists(pk)")
	} else {
		input.ConditionExpression = aws.String("head = :old")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":old": &types.AttributeValueMemberB{Value: old},
		}
	}
	_, err := b.client.PutItem(ctx, input)
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrHeadMoved
	}
	if err != nil {
		return fmt.Errorf("dynamo update branch: %w", err)
	}
	return nil
}

func (b *DynamoBranches) Remove(ctx context.Context, name string) error {
	_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.table),
		Key:       pkAttr(name),
	})
	if err != nil {
		return fmt.Errorf("dynamo remove branch: %w", err)
	}
	return nil
}

func (b *DynamoBranches) List(ctx context.Context) ([]string, error) {
	var names []string
	paginator := dynamodb.NewScanPaginator(b.client, &dynamodb.ScanInput{
		TableName:            aws.String(b.table),
		ProjectionExpression: aws.String("pk"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo list branches: %w", err)
		}
		var rows []struct {
			Name string `dynamodbav:"pk"`
		}
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &rows); err != nil {
			return nil, fmt.Errorf("dynamo list branches: %w", err)
		}
		for _, row := range rows {
			names = append(names, row.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func pkAttr(value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: value},
	}
}
