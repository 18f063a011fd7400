// Package ippsrv implements the IPP/2.x operation dispatcher and object
// lifecycle engine: attribute validation, the System/Printer/Job/Resource/
// Subscription/Device model and their state machines, the subscription
// event log, and the proxy/fetch protocol by which remote Output Devices
// pull jobs. The binary wire codec, HTTP transport, DNS-SD advertisement,
// and transform subprocesses are external collaborators consumed through
// small interfaces.
package ippsrv

import (
	"fmt"

	"github.com/google/uuid"
)

// PrinterID identifies a Printer within the System, 1..65535.
type PrinterID int32

// JobID identifies a Job within its owning Printer.
type JobID int32

// SubscriptionID identifies a Subscription within the System.
type SubscriptionID int32

// ResourceID identifies a Resource within the System.
type ResourceID int32

// namespace is an arbitrary fixed root for deterministic UUID derivation,
// mirroring the teacher's uuid.NewSHA1(uuid.UUID{}, ...) usage.
var namespace = uuid.UUID{}

func derivedUUID(parts ...string) string {
	var key string
	for _, p := range parts {
		key += "/" + p
	}
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

func printerUUID(name string) string {
	return derivedUUID("printer", name)
}

func jobUUID(printer string, id JobID) string {
	return derivedUUID("job", printer, fmt.Sprintf("%d", id))
}

func subscriptionUUID(id SubscriptionID) string {
	return derivedUUID("subscription", fmt.Sprintf("%d", id))
}

func resourceUUID(id ResourceID) string {
	return derivedUUID("resource", fmt.Sprintf("%d", id))
}

func deviceUUIDFromString(raw string) string {
	if raw == "" {
		return derivedUUID("device", fmt.Sprintf("%p", &raw))
	}
	return raw
}
