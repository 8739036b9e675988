package position

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Network identifies the chain a position lives on. Values match the slugs
// used by the vendor APIs.
type Network string

const (
	Ethereum Network = "ethereum"
	Polygon  Network = "polygon"
	Aurora   Network = "aurora"
)

// ContractType tags the variant of a position or token.
type ContractType string

const (
	BaseToken        ContractType = "base-token"
	AppToken         ContractType = "app-token"
	ContractPosition ContractType = "contract-position"
)

// Token is a price-bearing base token.
type Token struct {
	Type     ContractType `json:"type"`
	Address  string       `json:"address"`
	Network  Network      `json:"network"`
	Symbol   string       `json:"symbol"`
	Decimals uint8        `json:"decimals"`
	Price    float64      `json:"price"`
}

// NewToken returns a base token with a lowercase address and no price.
func NewToken(network Network, address, symbol string, decimals uint8) Token {
	return Token{
		Type:     BaseToken,
		Address:  strings.ToLower(address),
		Network:  network,
		Symbol:   symbol,
		Decimals: decimals,
	}
}

// Role marks how a token participates in a contract position.
type Role string

const (
	RoleSupplied  Role = "supplied"
	RoleClaimable Role = "claimable"
)

// RoleToken is a token tagged with its role in a contract position.
type RoleToken struct {
	Token
	MetaType Role `json:"metaType"`
}

func Supplied(t Token) RoleToken  { return RoleToken{Token: t, MetaType: RoleSupplied} }
func Claimable(t Token) RoleToken { return RoleToken{Token: t, MetaType: RoleClaimable} }

// DataProps carries numeric annotations of a position.
type DataProps struct {
	Liquidity float64 `json:"liquidity"`
	APY       float64 `json:"apy,omitempty"`
}

// DisplayItem is a typed value rendered by the host.
type DisplayItem struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// StatsItem is a labelled display item.
type StatsItem struct {
	Label string      `json:"label"`
	Value DisplayItem `json:"value"`
}

// DisplayProps carries presentation metadata of a position.
type DisplayProps struct {
	Label          string       `json:"label"`
	Images         []string     `json:"images"`
	SecondaryLabel *DisplayItem `json:"secondaryLabel,omitempty"`
	TertiaryLabel  string       `json:"tertiaryLabel,omitempty"`
	StatsItems     []StatsItem  `json:"statsItems,omitempty"`
}

// Position is implemented by AppTokenPosition and ContractPos.
type Position interface {
	Kind() ContractType
	PositionAddress() string
	Liquidity() float64
}

// AppTokenPosition is a yield-bearing token, such as a vault share.
type AppTokenPosition struct {
	Type          ContractType `json:"type"`
	AppID         string       `json:"appId"`
	GroupID       string       `json:"groupId"`
	Address       string       `json:"address"`
	Network       Network      `json:"network"`
	Symbol        string       `json:"symbol"`
	Decimals      uint8        `json:"decimals"`
	Supply        float64      `json:"supply"`
	PricePerShare float64      `json:"pricePerShare"`
	Price         float64      `json:"price"`
	Tokens        []Token      `json:"tokens"`
	DataProps     DataProps    `json:"dataProps"`
	DisplayProps  DisplayProps `json:"displayProps"`
}

func (p *AppTokenPosition) Kind() ContractType      { return AppToken }
func (p *AppTokenPosition) PositionAddress() string { return p.Address }
func (p *AppTokenPosition) Liquidity() float64      { return p.DataProps.Liquidity }

// ContractPos is a non-tradable contract holding value, such as a locker.
type ContractPos struct {
	Type         ContractType `json:"type"`
	AppID        string       `json:"appId"`
	GroupID      string       `json:"groupId"`
	Address      string       `json:"address"`
	Network      Network      `json:"network"`
	Tokens       []RoleToken  `json:"tokens"`
	DataProps    DataProps    `json:"dataProps"`
	DisplayProps DisplayProps `json:"displayProps"`
}

func (p *ContractPos) Kind() ContractType      { return ContractPosition }
func (p *ContractPos) PositionAddress() string { return p.Address }
func (p *ContractPos) Liquidity() float64      { return p.DataProps.Liquidity }

// List is a slice of positions that decodes by the "type" tag of each element.
type List []Position

func (l *List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(List, 0, len(raw))
	for i, r := range raw {
		var tag struct {
			Type ContractType `json:"type"`
		}
		if err := json.Unmarshal(r, &tag); err != nil {
			return fmt.Errorf("position %d: %w", i, err)
		}

		var p Position
		switch tag.Type {
		case AppToken:
			p = &AppTokenPosition{}
		case ContractPosition:
			p = &ContractPos{}
		default:
			return fmt.Errorf("position %d: unknown type %q", i, tag.Type)
		}
		if err := json.Unmarshal(r, p); err != nil {
			return fmt.Errorf("position %d: %w", i, err)
		}
		out = append(out, p)
	}
	*l = out
	return nil
}

// TotalLiquidity sums the liquidity of every position in the list.
func (l List) TotalLiquidity() float64 {
	var total float64
	for _, p := range l {
		total += p.Liquidity()
	}
	return total
}
