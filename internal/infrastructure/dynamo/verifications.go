package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/phone-otp-api/internal/domain"
	"github.com/phone-otp-api/internal/pkg/id"
)

// API is the subset of the DynamoDB client the verification repo uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// verificationItem is the stored shape. Timestamps are Unix milliseconds so
// expiry comparisons and the created_at GSI sort key are numeric.
type verificationItem struct {
	ID          string `dynamodbav:"id"`
	PhoneNumber string `dynamodbav:"phone_number"`
	Name        string `dynamodbav:"name"`
	OTPCode     string `dynamodbav:"otp_code"`
	Verified    bool   `dynamodbav:"verified"`
	CreatedAt   int64  `dynamodbav:"created_at"`
	ExpiresAt   int64  `dynamodbav:"expires_at"`
	VerifiedAt  *int64 `dynamodbav:"verified_at,omitempty"`
	Kind        string `dynamodbav:"kind"`
}

func toItem(v *domain.VerificationRecord) *verificationItem {
	it := &verificationItem{
		ID:          v.ID,
		PhoneNumber: v.PhoneNumber,
		Name:        v.Name,
		OTPCode:     v.OTPCode,
		Verified:    v.Verified,
		CreatedAt:   v.CreatedAt.UnixMilli(),
		ExpiresAt:   v.ExpiresAt.UnixMilli(),
		Kind:        itemKind,
	}
	if v.VerifiedAt != nil {
		ms := v.VerifiedAt.UnixMilli()
		it.VerifiedAt = &ms
	}
	return it
}

func (it *verificationItem) toDomain() domain.VerificationRecord {
	v := domain.VerificationRecord{
		ID:          it.ID,
		PhoneNumber: it.PhoneNumber,
		Name:        it.Name,
		OTPCode:     it.OTPCode,
		Verified:    it.Verified,
		CreatedAt:   time.UnixMilli(it.CreatedAt).UTC(),
		ExpiresAt:   time.UnixMilli(it.ExpiresAt).UTC(),
	}
	if it.VerifiedAt != nil {
		t := time.UnixMilli(*it.VerifiedAt).UTC()
		v.VerifiedAt = &t
	}
	return v
}

// VerificationRepo stores phone verification records.
// PK: id (ULID). GSI phone_number-created_at-index: phone_number + created_at.
// GSI kind-id-index: kind + id, for the dashboard listing.
// No TTL: records are only removed when a newer issuance supersedes them.
type VerificationRepo struct {
	client    API
	tableName string
}

func NewVerificationRepo(client API, tableName string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName}
}

func (r *VerificationRepo) Insert(ctx context.Context, v *domain.VerificationRecord) error {
	in, err := r.putInput(v)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, in)
	return err
}

func (r *VerificationRepo) putInput(v *domain.VerificationRecord) (*dynamodb.PutItemInput, error) {
	item, err := attributevalue.MarshalMap(toItem(v))
	if err != nil {
		return nil, fmt.Errorf("marshal verification: %w", err)
	}
	return &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(" + fieldID + ")"),
	}, nil
}

// pendingIDs returns the ids of unverified records for phoneNumber.
func (r *VerificationRepo) pendingIDs(ctx context.Context, phoneNumber string) ([]string, error) {
	items, err := r.queryPhone(ctx, phoneNumber, fieldVerified+" = :f",
		map[string]types.AttributeValue{":f": boolValue(false)}, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids, nil
}

func (r *VerificationRepo) deleteIfPending(id string) *dynamodb.DeleteItemInput {
	return &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldID, id),
		ConditionExpression:       aws.String(fieldVerified + " = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":f": boolValue(false)},
	}
}

func (r *VerificationRepo) DeletePending(ctx context.Context, phoneNumber string) (int, error) {
	ids, err := r.pendingIDs(ctx, phoneNumber)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		_, err := r.client.DeleteItem(ctx, r.deleteIfPending(id))
		var ccf *types.ConditionalCheckFailedException
		switch {
		case errors.As(err, &ccf):
			// verified in the meantime; it is history now, keep it
		case err != nil:
			return n, err
		default:
			n++
		}
	}
	return n, nil
}

// maxTransactItems is the DynamoDB limit on actions per TransactWriteItems call.
const maxTransactItems = 100

// ReplacePending deletes the stale unverified records and puts v in a single
// TransactWriteItems call. When the stale set cannot be read v is still
// stored with a plain put. A cancelled transaction is retried as
// DeletePending followed by Insert.
func (r *VerificationRepo) ReplacePending(ctx context.Context, v *domain.VerificationRecord) error {
	ids, err := r.pendingIDs(ctx, v.PhoneNumber)
	if err != nil {
		slog.Warn("query stale unverified records", "phone", v.PhoneNumber, "err", err)
		ids = nil
	}
	if len(ids) == 0 {
		return r.Insert(ctx, v)
	}
	if len(ids) >= maxTransactItems {
		if _, err := r.DeletePending(ctx, v.PhoneNumber); err != nil {
			slog.Warn("delete stale unverified records", "phone", v.PhoneNumber, "err", err)
		}
		return r.Insert(ctx, v)
	}

	put, err := r.putInput(v)
	if err != nil {
		return err
	}
	items := make([]types.TransactWriteItem, 0, len(ids)+1)
	for _, id := range ids {
		d := r.deleteIfPending(id)
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName:                 d.TableName,
			Key:                       d.Key,
			ConditionExpression:       d.ConditionExpression,
			ExpressionAttributeValues: d.ExpressionAttributeValues,
		}})
	}
	items = append(items, types.TransactWriteItem{Put: &types.Put{
		TableName:           put.TableName,
		Item:                put.Item,
		ConditionExpression: put.ConditionExpression,
	}})

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		slog.Warn("replace pending transaction cancelled, retrying as delete then insert", "phone", v.PhoneNumber, "err", err)
		if _, err := r.DeletePending(ctx, v.PhoneNumber); err != nil {
			slog.Warn("delete stale unverified records", "phone", v.PhoneNumber, "err", err)
		}
		return r.Insert(ctx, v)
	}
	if err == nil {
		slog.Info("superseded unverified records", "phone", v.PhoneNumber, "count", len(ids))
	}
	return err
}

func (r *VerificationRepo) FindCandidate(ctx context.Context, phoneNumber, otpCode string, now time.Time) (*domain.VerificationRecord, error) {
	items, err := r.queryPhone(ctx, phoneNumber,
		fieldOTPCode+" = :c AND "+fieldVerified+" = :f AND "+fieldExpiresAt+" > :now",
		map[string]types.AttributeValue{
			":c":   &types.AttributeValueMemberS{Value: otpCode},
			":f":   boolValue(false),
			":now": numValue(now.UnixMilli()),
		}, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("verification not found: %w", domain.ErrNotFound)
	}
	v := items[0].toDomain()
	return &v, nil
}

func (r *VerificationRepo) MarkVerified(ctx context.Context, id string, now time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldVerified:   true,
		fieldVerifiedAt: now.UnixMilli(),
	})
	if err != nil {
		return err
	}
	ue.Values[":pending"] = boolValue(false)
	ue.Values[":now"] = numValue(now.UnixMilli())
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldID, id),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(" + fieldID + ") AND " + fieldVerified + " = :pending AND " + fieldExpiresAt + " > :now"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("pending verification %s not found: %w", id, domain.ErrNotFound)
	}
	return err
}

func (r *VerificationRepo) HasVerified(ctx context.Context, phoneNumber string) (bool, error) {
	items, err := r.queryPhone(ctx, phoneNumber, fieldVerified+" = :t",
		map[string]types.AttributeValue{":t": boolValue(true)}, 1)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

// queryPhone walks the phone GSI newest first applying filter, and stops once
// max items matched (0 means no limit). Query Limit is not used because it
// caps items read before the filter runs.
func (r *VerificationRepo) queryPhone(ctx context.Context, phoneNumber, filter string, values map[string]types.AttributeValue, max int) ([]verificationItem, error) {
	vals := map[string]types.AttributeValue{":p": &types.AttributeValueMemberS{Value: phoneNumber}}
	for k, v := range values {
		vals[k] = v
	}
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexPhoneCreated),
		KeyConditionExpression:    aws.String(fieldPhoneNumber + " = :p"),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeValues: vals,
		ScanIndexForward:          aws.Bool(false),
	})
	var out []verificationItem
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var items []verificationItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		out = append(out, items...)
		if max > 0 && len(out) >= max {
			return out[:max], nil
		}
	}
	return out, nil
}

// List queries the kind-id index newest first and keeps reading until
// f.Limit records pass the status filter or the index is exhausted. Query
// Limit caps items read before the filter, so one call is not enough. The
// cursor wraps the id of the last returned record.
func (r *VerificationRepo) List(ctx context.Context, f domain.ListFilter) ([]domain.VerificationRecord, string, error) {
	input := dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(indexKindID),
		KeyConditionExpression: aws.String(fieldKind + " = :k"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": &types.AttributeValueMemberS{Value: itemKind},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if f.Limit > 0 {
		input.Limit = aws.Int32(int32(f.Limit))
	}
	if f.Status != domain.StatusAll && f.Status != "" {
		input.FilterExpression = aws.String(fieldVerified + " = :v")
		input.ExpressionAttributeValues[":v"] = boolValue(f.Status == domain.StatusVerified)
	}
	var start map[string]types.AttributeValue
	if f.Cursor != "" {
		startID, err := decodeCursor(f.Cursor)
		if err != nil || !id.Valid(startID) {
			return nil, "", fmt.Errorf("invalid cursor: %w", domain.ErrBadRequest)
		}
		start = map[string]types.AttributeValue{
			fieldKind: &types.AttributeValueMemberS{Value: itemKind},
			fieldID:   &types.AttributeValueMemberS{Value: startID},
		}
	}

	recs := []domain.VerificationRecord{}
	for {
		in := input
		in.ExclusiveStartKey = start
		out, err := r.client.Query(ctx, &in)
		if err != nil {
			return nil, "", err
		}
		var items []verificationItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, "", err
		}
		for i := range items {
			recs = append(recs, items[i].toDomain())
			if f.Limit > 0 && len(recs) == f.Limit {
				return recs, encodeCursor(items[i].ID), nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return recs, "", nil
		}
		start = out.LastEvaluatedKey
	}
}

func (r *VerificationRepo) Stats(ctx context.Context) (*domain.VerificationStats, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:            aws.String(r.tableName),
		ProjectionExpression: aws.String(fieldVerified),
	})
	st := &domain.VerificationStats{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			st.Total++
			if b, ok := item[fieldVerified].(*types.AttributeValueMemberBOOL); ok && b.Value {
				st.Verified++
			} else {
				st.Unverified++
			}
		}
	}
	return st, nil
}
