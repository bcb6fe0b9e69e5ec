package handler

import (
	"time"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// Line is a cart or order line on the wire. Amounts are JSON numbers.
type Line struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Cart is the stored cart document of one owner.
type Cart struct {
	UserID    string     `json:"userId"`
	Items     []Line     `json:"items"`
	Total     float64    `json:"total"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Product is the catalog detail joined into order listings.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
	ImageURL string  `json:"imageUrl,omitempty"`
}

// Order is a placed order.
type Order struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Items         []Line    `json:"items"`
	Total         float64   `json:"total"`
	Address       string    `json:"address"`
	PaymentMethod string    `json:"paymentMethod"`
	GCashNumber   string    `json:"gcashNumber,omitempty"`
	DeliveryType  string    `json:"deliveryType"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	Products      []Product `json:"products,omitempty"`
}

// Delivery is the fulfillment record of an order.
type Delivery struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"orderId"`
	UserID    string            `json:"userId"`
	Status    string            `json:"status"`
	Type      string            `json:"type"`
	DriverID  string            `json:"driverId,omitempty"`
	Vehicle   *delivery.Vehicle `json:"vehicle,omitempty"`
	Address   string            `json:"address"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Request bodies. Incoming prices are decoded exactly into decimals.
type (
	replaceCartRequest struct {
		UserID string     `json:"userId"`
		Items  cart.Lines `json:"items"`
	}

	createOrderRequest struct {
		Items         cart.Lines `json:"items"`
		Address       string     `json:"address"`
		PaymentMethod string     `json:"paymentMethod"`
		GCashNumber   string     `json:"gcashNumber"`
		DeliveryType  string     `json:"deliveryType"`
	}

	advanceDeliveryRequest struct {
		Status   string `json:"status" binding:"required"`
		DriverID string `json:"driverId"`
	}
)

func toLines(ls cart.Lines) []Line {
	out := make([]Line, len(ls))
	for i, l := range ls {
		out[i] = Line{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.UnitPrice.InexactFloat64(),
			Quantity:  l.Quantity,
		}
	}
	return out
}

func toCart(c *cart.Cart) Cart {
	out := Cart{
		UserID: c.OwnerID,
		Items:  toLines(c.Lines),
		Total:  c.Lines.Total().InexactFloat64(),
	}
	if !c.UpdatedAt.IsZero() {
		out.UpdatedAt = &c.UpdatedAt
	}
	return out
}

func toOrder(o *order.Order, products []product.Product) Order {
	out := Order{
		ID:            o.ID,
		UserID:        o.UserID,
		Items:         toLines(o.Lines),
		Total:         o.Total.InexactFloat64(),
		Address:       o.Address,
		PaymentMethod: string(o.PaymentMethod),
		GCashNumber:   o.GCashNumber,
		DeliveryType:  string(o.DeliveryType),
		Status:        string(o.Status),
		CreatedAt:     o.CreatedAt,
	}
	for _, p := range products {
		out.Products = append(out.Products, Product{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price.InexactFloat64(),
			Category: p.Category,
			ImageURL: p.ImageURL,
		})
	}
	return out
}

func toDelivery(d *delivery.Record) Delivery {
	return Delivery{
		ID:        d.ID,
		OrderID:   d.OrderID,
		UserID:    d.UserID,
		Status:    string(d.Status),
		Type:      string(d.Type),
		DriverID:  d.DriverID,
		Vehicle:   d.Vehicle,
		Address:   d.Address,
		CreatedAt: d.CreatedAt,
	}
}

func toDeliveries(records []delivery.Record) []Delivery {
	out := make([]Delivery, len(records))
	for i := range records {
		out[i] = toDelivery(&records[i])
	}
	return out
}
