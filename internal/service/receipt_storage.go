package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	receiptPathPrefix = "receipts"
	receiptURLTTL     = 15 * time.Minute
)

var (
	ErrReceiptStorageDisabled = errors.New("receipt storage is not configured")
	ErrReceiptNotAvailable    = errors.New("receipt not available")
	ErrReceiptUploadFailed    = errors.New("failed to upload receipt")
)

// Receipt is the collection document written after a confirmed payment.
// The collection code is what the canteen counter scans against the
// student's token.
type Receipt struct {
	OrderID        string    `json:"order_id"`
	TransactionID  string    `json:"transaction_id"`
	CollectionCode string    `json:"collection_code"`
	IssuedAt       time.Time `json:"issued_at"`
}

// ReceiptStore persists receipts and serves presigned links to them.
type ReceiptStore interface {
	StoreReceipt(ctx context.Context, receipt Receipt) (string, error)
	ReceiptURL(ctx context.Context, orderID string) (string, error)
}

// MinIOReceiptStore implements ReceiptStore on S3-compatible storage.
type MinIOReceiptStore struct {
	client     *minio.Client
	bucketName string
}

func NewMinIOReceiptStore(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOReceiptStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	store := &MinIOReceiptStore{client: client, bucketName: bucketName}
	if err := store.ensureBucket(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MinIOReceiptStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (s *MinIOReceiptStore) StoreReceipt(ctx context.Context, receipt Receipt) (string, error) {
	if receipt.CollectionCode == "" {
		receipt.CollectionCode = newCollectionCode()
	}
	payload, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("marshal receipt: %w", err)
	}
	objectKey := receiptObjectKey(receipt.OrderID)
	_, err = s.client.PutObject(ctx, s.bucketName, objectKey,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReceiptUploadFailed, err)
	}
	return objectKey, nil
}

func (s *MinIOReceiptStore) ReceiptURL(ctx context.Context, orderID string) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucketName, receiptObjectKey(orderID), receiptURLTTL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReceiptNotAvailable, err)
	}
	return url.String(), nil
}

func receiptObjectKey(orderID string) string {
	return fmt.Sprintf("%s/%s.json", receiptPathPrefix, orderID)
}

func newCollectionCode() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
