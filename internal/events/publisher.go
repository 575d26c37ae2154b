package events

import (
	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/pipeline"
	"github.com/mattjoyce/jarscout/internal/workqueue"
)

// Event types published by Publisher.
const (
	TypeScanRequested   = "scan.requested"
	TypeScanFailed      = "scan.failed"
	TypeArchiveListed   = "archive.listed"
	TypeArchiveFailed   = "archive.failed"
	TypeStandalone      = "class.standalone"
	TypeItemFailed      = "pipeline.item_failed"
	TypePipelineDrained = "pipeline.drained"
	TypePipelineStopped = "pipeline.stopped"
)

// ScanData is the payload of scan events.
type ScanData struct {
	Root  string `json:"root"`
	Error string `json:"error,omitempty"`
}

// ArchiveData is the payload of archive events.
type ArchiveData struct {
	Path    string `json:"path"`
	Classes int    `json:"classes"`
	Digest  string `json:"digest,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ClassData is the payload of class.standalone.
type ClassData struct {
	File string `json:"file"`
	Name string `json:"name"`
}

// ItemData is the payload of pipeline.item_failed.
type ItemData struct {
	ID    uint64 `json:"id"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// Publisher is a pipeline.Observer that publishes to a Hub.
type Publisher struct {
	pipeline.NopObserver
	Hub *Hub
}

func (p Publisher) OnScanRequested(root string) {
	p.Hub.Publish(TypeScanRequested, ScanData{Root: root})
}

func (p Publisher) OnScanFailed(root string, err error) {
	p.Hub.Publish(TypeScanFailed, ScanData{Root: root, Error: err.Error()})
}

func (p Publisher) OnExtracted(l archive.Listing) {
	p.Hub.Publish(TypeArchiveListed, ArchiveData{Path: l.Path, Classes: len(l.Entries), Digest: l.Digest})
}

func (p Publisher) OnExtractionFailed(source string, err error) {
	p.Hub.Publish(TypeArchiveFailed, ArchiveData{Path: source, Error: err.Error()})
}

func (p Publisher) OnStandalone(path string) {
	c := archive.NewClass(path)
	p.Hub.Publish(TypeStandalone, ClassData{File: c.File, Name: c.Name})
}

func (p Publisher) OnItemFailed(item workqueue.Item, err error) {
	p.Hub.Publish(TypeItemFailed, ItemData{ID: item.ID, Kind: string(item.Kind), Error: err.Error()})
}

func (p Publisher) OnAllDone() { p.Hub.Publish(TypePipelineDrained, nil) }
func (p Publisher) OnStopped() { p.Hub.Publish(TypePipelineStopped, nil) }
