// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package core

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Operation represents a backend storage operation, one of Create, Read, Update, Delete, List
type Operation string

// all supported database operations
const (
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationList   Operation = "list"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationCreate, OperationRead, OperationUpdate, OperationDelete, OperationList:
		return nil
	default:
		return fmt.Errorf("%s is not valid Operation", s)
	}
}

// Resource names used in notifications and statistics
const (
	ResourceUser    = "user"
	ResourceAddress = "address"
	ResourceCar     = "car"
	ResourceUserCar = "user_car"
)

// Notifier is an interface to receive notifications about committed changes.
// Notify is called after the database transaction has been committed; payload
// is the JSON representation of the resource after the operation (or before it,
// for deletions).
type Notifier interface {
	Notify(ctx context.Context, resource string, operation Operation, resourceID uuid.UUID, payload []byte) error
}
