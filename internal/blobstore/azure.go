package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// Azure stores blobs in one container of an Azure storage account.
type Azure struct {
	client    *azblob.Client
	container string
}

// NewAzure connects with a storage connection string.
func NewAzure(connectionString, container string) (*Azure, error) {
	if connectionString == "" || container == "" {
		return nil, errors.New("azure blob storage requires a connection string and container")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return &Azure{client: client, container: container}, nil
}

func (a *Azure) Provider() string { return "azure" }

// Put uploads data as a block blob and returns the blob URL.
func (a *Azure) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if name == "" {
		return "", errors.New("blob name cannot be empty")
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	_, err := a.client.UploadBuffer(ctx, a.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}

	return a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(name).URL(), nil
}
