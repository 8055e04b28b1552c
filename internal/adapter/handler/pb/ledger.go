// Package pb declares the market.v1.Ledger gRPC service. Messages are plain
// structs carried by a JSON codec; amounts travel as decimal strings.
package pb

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "market.v1.Ledger"

type Item struct {
	Id            uint64 `json:"id"`
	AssetContract string `json:"asset_contract"`
	TokenId       string `json:"token_id"`
	MetadataUri   string `json:"metadata_uri,omitempty"`
	Seller        string `json:"seller"`
	Owner         string `json:"owner"`
	Price         string `json:"price"`
	Sold          bool   `json:"sold"`
	CreatedAt     string `json:"created_at"`
	SoldAt        string `json:"sold_at,omitempty"`
}

type CreateListingRequest struct {
	AssetContract string `json:"asset_contract"`
	TokenId       string `json:"token_id"`
	MetadataUri   string `json:"metadata_uri,omitempty"`
	Seller        string `json:"seller"`
	Price         string `json:"price"`
	FeePaid       string `json:"fee_paid"`
}

type SettleSaleRequest struct {
	RequestId string `json:"request_id,omitempty"`
	ItemId    uint64 `json:"item_id"`
	Buyer     string `json:"buyer"`
	Payment   string `json:"payment"`
}

type Receipt struct {
	Id        string `json:"id"`
	ItemId    uint64 `json:"item_id"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Amount    string `json:"amount"`
	SettledAt string `json:"settled_at"`
}

type GetItemRequest struct {
	ItemId uint64 `json:"item_id"`
}

type FetchActiveItemsRequest struct{}

type ItemList struct {
	Items []*Item `json:"items"`
}

type CurrentFeeRequest struct{}

type Fee struct {
	Fee string `json:"fee"`
}

type LedgerServer interface {
	CreateListing(context.Context, *CreateListingRequest) (*Item, error)
	SettleSale(context.Context, *SettleSaleRequest) (*Receipt, error)
	GetItem(context.Context, *GetItemRequest) (*Item, error)
	FetchActiveItems(context.Context, *FetchActiveItemsRequest) (*ItemList, error)
	CurrentFee(context.Context, *CurrentFeeRequest) (*Fee, error)
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&Ledger_ServiceDesc, srv)
}

var Ledger_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateListing", LedgerServer.CreateListing),
		unary("SettleSale", LedgerServer.SettleSale),
		unary("GetItem", LedgerServer.GetItem),
		unary("FetchActiveItems", LedgerServer.FetchActiveItems),
		unary("CurrentFee", LedgerServer.CurrentFee),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "market/v1/ledger.proto",
}

func unary[Req, Resp any](method string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// LedgerClient calls market.v1.Ledger with the JSON codec.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) CreateListing(ctx context.Context, in *CreateListingRequest, opts ...grpc.CallOption) (*Item, error) {
	return invoke[Item](ctx, c.cc, "CreateListing", in, opts)
}

func (c *LedgerClient) SettleSale(ctx context.Context, in *SettleSaleRequest, opts ...grpc.CallOption) (*Receipt, error) {
	return invoke[Receipt](ctx, c.cc, "SettleSale", in, opts)
}

func (c *LedgerClient) GetItem(ctx context.Context, in *GetItemRequest, opts ...grpc.CallOption) (*Item, error) {
	return invoke[Item](ctx, c.cc, "GetItem", in, opts)
}

func (c *LedgerClient) FetchActiveItems(ctx context.Context, in *FetchActiveItemsRequest, opts ...grpc.CallOption) (*ItemList, error) {
	return invoke[ItemList](ctx, c.cc, "FetchActiveItems", in, opts)
}

func (c *LedgerClient) CurrentFee(ctx context.Context, in *CurrentFeeRequest, opts ...grpc.CallOption) (*Fee, error) {
	return invoke[Fee](ctx, c.cc, "CurrentFee", in, opts)
}
