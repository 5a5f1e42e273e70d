package repositories

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"todo-api/internal/models"
)

// DynamoAPI はDynamoTaskRepositoryが使う *dynamodb.Client のメソッドです。
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// DynamoTaskRepository はDynamoDBのテーブルをタスクの保存先として使います。
// 失効はテーブルのTTL (ttl属性) に任せます。
type DynamoTaskRepository struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewDynamoTaskRepository は新しいDynamoTaskRepositoryを作成します。
func NewDynamoTaskRepository(client DynamoAPI, table string) *DynamoTaskRepository {
	return &DynamoTaskRepository{client: client, table: table, now: time.Now}
}

func taskKey(taskID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"task_id": &types.AttributeValueMemberS{Value: taskID},
	}
}

// Create はPutItemでタスクを書き込みます。
func (r *DynamoTaskRepository) Create(ctx context.Context, t *models.Task) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("could not marshal task: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		log.Printf("Failed to put task: %v", err)
		return fmt.Errorf("could not put task: %w", err)
	}
	return nil
}

// FindByID はGetItemでタスクを取得します。
func (r *DynamoTaskRepository) FindByID(ctx context.Context, taskID string) (*models.Task, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key:       taskKey(taskID),
	})
	if err != nil {
		log.Printf("Failed to get task: %v", err)
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrTaskNotFound
	}

	var t models.Task
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, fmt.Errorf("could not unmarshal task: %w", err)
	}
	return &t, nil
}

// FindByUserID は user-index を created_time の降順でクエリします。
// TTL削除が遅れて残っている失効済みの項目は ttl > now の条件で除外します。
// DynamoDBはLimitを条件より先に適用するため、limit件に満たなければ続きのページを読みます。
func (r *DynamoTaskRepository) FindByUserID(ctx context.Context, userID string, limit int) ([]*models.Task, error) {
	tasks := make([]*models.Task, 0, limit)
	if userID == "" {
		return tasks, nil
	}

	keyCond := expression.Key("user_id").Equal(expression.Value(userID))
	filter := expression.Name("ttl").GreaterThan(expression.Value(r.now().Unix()))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("could not build key condition: %w", err)
	}

	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.table),
			IndexName:                 aws.String(UserIndexName),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false),
			Limit:                     aws.Int32(int32(limit)),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			log.Printf("Failed to query tasks: %v", err)
			return nil, fmt.Errorf("could not query tasks: %w", err)
		}

		var items []models.Task
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("could not unmarshal tasks: %w", err)
		}
		for i := range items {
			if len(tasks) == limit {
				return tasks, nil
			}
			tasks = append(tasks, &items[i])
		}

		if len(tasks) >= limit || len(out.LastEvaluatedKey) == 0 {
			return tasks, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// buildUpdateExpression は指定されたフィールドごとにSET句を組み立てます。
// 存在しないIDで項目が作られないように attribute_exists(task_id) を条件にします。
func buildUpdateExpression(u models.TaskUpdate) (expression.Expression, error) {
	if u.Empty() {
		return expression.Expression{}, ErrEmptyUpdate
	}

	var update expression.UpdateBuilder
	if u.Content != nil {
		update = update.Set(expression.Name("content"), expression.Value(*u.Content))
	}
	if u.IsDone != nil {
		update = update.Set(expression.Name("is_done"), expression.Value(*u.IsDone))
	}
	cond := expression.AttributeExists(expression.Name("task_id"))

	return expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
}

// Update はUpdateItemで指定されたフィールドを更新します。
func (r *DynamoTaskRepository) Update(ctx context.Context, taskID string, u models.TaskUpdate) error {
	expr, err := buildUpdateExpression(u)
	if err != nil {
		return err
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       taskKey(taskID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrTaskNotFound
		}
		log.Printf("Failed to update task: %v", err)
		return fmt.Errorf("could not update task: %w", err)
	}
	return nil
}

// Delete はDeleteItemでタスクを削除します。
func (r *DynamoTaskRepository) Delete(ctx context.Context, taskID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       taskKey(taskID),
	})
	if err != nil {
		log.Printf("Failed to delete task: %v", err)
		return fmt.Errorf("could not delete task: %w", err)
	}
	return nil
}

// Ping はDescribeTableでテーブルに到達できるかを確認します。
func (r *DynamoTaskRepository) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.table)})
	return err
}

// Close は何もしません。SDKのクライアントは閉じる必要がありません。
func (r *DynamoTaskRepository) Close() error { return nil }

// EnsureTable はテーブルが無ければ作成し、user-index と ttl によるTTLを設定します。
// DynamoDB Local や統合テスト用です。
func (r *DynamoTaskRepository) EnsureTable(ctx context.Context, maxWait time.Duration) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("could not describe table: %w", err)
	}

	_, err = r.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(r.table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("task_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("user_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("created_time"), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("task_id"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(UserIndexName),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("user_id"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("created_time"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("could not create table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(r.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.table)}, maxWait); err != nil {
		return fmt.Errorf("table %s did not become active: %w", r.table, err)
	}

	_, err = r.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(r.table),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String("ttl"),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("could not enable ttl: %w", err)
	}
	log.Printf("Created table %s with %s and ttl", r.table, UserIndexName)
	return nil
}
