package api

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/txn2/report-gateway/pkg/configstore"
	"github.com/txn2/report-gateway/pkg/product"
	"github.com/txn2/report-gateway/pkg/rpc"
)

// ProductInfo describes one managed product to clients.
type ProductInfo struct {
	ID               int64  `json:"id"`
	Endpoint         string `json:"endpoint"`
	DisplayName      string `json:"displayName"`
	Connected        bool   `json:"connected"`
	LastConnectError string `json:"lastConnectError,omitempty"`
}

type addProductParams struct {
	Endpoint    string `json:"endpoint"`
	Connection  string `json:"connection"`
	DisplayName string `json:"displayName"`
}

type removeProductParams struct {
	Endpoint string `json:"endpoint"`
}

// Products serves the product-less product management service.
type Products struct {
	store   *configstore.Store
	manager *product.Manager
	current *product.Product
}

// NewProducts builds the service for one request. The current product
// is non-nil only when the call came through a product route.
func NewProducts(store *configstore.Store, manager *product.Manager, current *product.Product) *Products {
	return &Products{store: store, manager: manager, current: current}
}

// Call implements rpc.Handler.
func (s *Products) Call(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "getProducts":
		infos := make([]ProductInfo, 0)
		for _, p := range s.manager.All() {
			infos = append(infos, describe(p))
		}
		sort.Slice(infos, func(i, j int) bool {
			return infos[i].Endpoint < infos[j].Endpoint
		})
		return infos, nil

	case "getCurrentProduct":
		if s.current == nil {
			return nil, rpc.Faultf(rpc.CodeGeneric,
				"the request was not addressed to a product")
		}
		return describe(s.current), nil

	case "addProduct":
		var p addProductParams
		if err := json.Unmarshal(params, &p); err != nil || p.Endpoint == "" || p.Connection == "" {
			return nil, rpc.Faultf(rpc.CodeInvalidParams, "invalid product descriptor")
		}
		if p.DisplayName == "" {
			p.DisplayName = p.Endpoint
		}

		rec, err := s.store.AddProduct(ctx, configstore.Product{
			Endpoint:    p.Endpoint,
			Connection:  p.Connection,
			DisplayName: p.DisplayName,
		})
		if errors.Is(err, configstore.ErrDuplicateEndpoint) {
			return nil, rpc.Faultf(rpc.CodeGeneric,
				"product %q is already configured", p.Endpoint)
		}
		if err != nil {
			return nil, err
		}

		managed, err := s.manager.Add(ctx, rec)
		if err != nil {
			return nil, rpc.Faultf(rpc.CodeGeneric, "%s", err.Error())
		}
		return describe(managed), nil

	case "removeProduct":
		var p removeProductParams
		if err := json.Unmarshal(params, &p); err != nil || p.Endpoint == "" {
			return nil, rpc.Faultf(rpc.CodeInvalidParams, "invalid product endpoint")
		}
		if err := s.manager.Remove(p.Endpoint); err != nil {
			return nil, rpc.Faultf(rpc.CodeGeneric, "%s", err.Error())
		}
		if err := s.store.RemoveProduct(ctx, p.Endpoint); err != nil &&
			!errors.Is(err, configstore.ErrNotFound) {
			return nil, err
		}
		return true, nil

	default:
		return nil, rpc.Faultf(rpc.CodeUnknownMethod,
			"Products has no method %q", method)
	}
}

func describe(p *product.Product) ProductInfo {
	info := ProductInfo{
		ID:          p.ID(),
		Endpoint:    p.Endpoint(),
		DisplayName: p.DisplayName(),
		Connected:   p.Connected(),
	}
	if reason, failed := p.LastConnectionFailure(); failed {
		info.LastConnectError = reason
	}
	return info
}
