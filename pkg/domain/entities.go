// Package domain defines the persistent entities, key names and storage
// contracts shared by every detailcrm component.
package domain

import (
	"encoding/json"
	"time"
)

// Role identifies the access level of a user account.
type Role string

// Supported user roles.
const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleAdmin, RoleCustomer:
		return true
	}
	return false
}

// PaymentStatus tracks how much of an invoice has been settled.
type PaymentStatus string

// Invoice payment states.
const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
)

// LedgerStatus is the settlement state of a payroll ledger entry.
type LedgerStatus string

// Payroll ledger states. A Settled entry was Pending until a payout row
// absorbed its amount; it no longer counts as owed or as paid out.
const (
	LedgerPaid    LedgerStatus = "Paid"
	LedgerPending LedgerStatus = "Pending"
	LedgerSettled LedgerStatus = "Settled"
)

// Customer is a detailing client together with the vehicle being serviced.
type Customer struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email,omitempty"`
	Address          string    `json:"address,omitempty"`
	Vehicle          string    `json:"vehicle"`
	Model            string    `json:"model"`
	Year             string    `json:"year"`
	Color            string    `json:"color,omitempty"`
	Mileage          string    `json:"mileage,omitempty"`
	VehicleType      string    `json:"vehicleType,omitempty"`
	ConditionInside  string    `json:"conditionInside,omitempty"`
	ConditionOutside string    `json:"conditionOutside,omitempty"`
	Services         []string  `json:"services"`
	LastService      string    `json:"lastService,omitempty"`
	Duration         string    `json:"duration,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	IsStaticMock     bool      `json:"isStaticMock,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// InvoiceLine is a billed service.
type InvoiceLine struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Invoice bills a customer. CustomerID is not referentially enforced.
type Invoice struct {
	ID            string        `json:"id"`
	CustomerID    string        `json:"customerId"`
	CustomerName  string        `json:"customerName"`
	Services      []InvoiceLine `json:"services"`
	Total         float64       `json:"total"`
	PaidAmount    float64       `json:"paidAmount"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	InvoiceNumber string        `json:"invoiceNumber,omitempty"`
	Date          string        `json:"date"`
	IsStaticMock  bool          `json:"isStaticMock,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Expense is a business cost used by profit/loss reporting.
type Expense struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Amount      float64   `json:"amount"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Chemical is a bottled consumable tracked by remaining stock.
type Chemical struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	BottleSize    string    `json:"bottleSize"`
	CostPerBottle float64   `json:"costPerBottle"`
	Threshold     float64   `json:"threshold"`
	CurrentStock  float64   `json:"currentStock"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Material is a countable consumable (towels, pads, applicators).
type Material struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Subtype      string    `json:"subtype,omitempty"`
	Quantity     float64   `json:"quantity"`
	CostPerItem  float64   `json:"costPerItem,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	LowThreshold *float64  `json:"lowThreshold,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Tool is durable equipment whose wear is logged as usage.
type Tool struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Quantity  float64   `json:"quantity"`
	Condition string    `json:"condition,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UsageRecord is an append-only inventory consumption entry. Exactly one
// of ChemicalID, MaterialID or ToolID is set.
type UsageRecord struct {
	ID           string  `json:"id"`
	ChemicalID   string  `json:"chemicalId,omitempty"`
	ChemicalName string  `json:"chemicalName,omitempty"`
	MaterialID   string  `json:"materialId,omitempty"`
	MaterialName string  `json:"materialName,omitempty"`
	ToolID       string  `json:"toolId,omitempty"`
	ToolName     string  `json:"toolName,omitempty"`
	QuantityUsed float64 `json:"quantityUsed"`
	ServiceName  string  `json:"serviceName"`
	Date         string  `json:"date"`
	Employee     string  `json:"employee,omitempty"`
}

// UsageEvent requests a stock decrement for one inventory row.
type UsageEvent struct {
	ChemicalID   string  `json:"chemicalId,omitempty"`
	MaterialID   string  `json:"materialId,omitempty"`
	ToolID       string  `json:"toolId,omitempty"`
	QuantityUsed float64 `json:"quantityUsed"`
	ServiceName  string  `json:"serviceName"`
	Employee     string  `json:"employee,omitempty"`
	Date         string  `json:"date,omitempty"`
}

// User is an application account.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	PasswordHash string     `json:"passwordHash,omitempty"`
}

// Redacted returns the user without credential material.
func (u User) Redacted() User {
	u.PasswordHash = ""
	return u
}

// Employee is a payroll-tracked staff member.
type Employee struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role,omitempty"`
	PayRate   float64    `json:"payRate,omitempty"`
	LastPaid  *time.Time `json:"lastPaid,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// PayrollEntry is an append-only payroll ledger row.
type PayrollEntry struct {
	ID          string       `json:"id"`
	Employee    string       `json:"employee"`
	Amount      float64      `json:"amount"`
	Type        string       `json:"type"`
	Description string       `json:"description,omitempty"`
	Date        string       `json:"date"`
	Status      LedgerStatus `json:"status"`
}

// CompletedJob is a finished service attributed to an employee.
type CompletedJob struct {
	ID           string  `json:"id"`
	Employee     string  `json:"employee"`
	CustomerName string  `json:"customerName,omitempty"`
	Service      string  `json:"service,omitempty"`
	Revenue      float64 `json:"revenue"`
	Paid         bool    `json:"paid"`
	Date         string  `json:"date"`
}

// AdminAlert is an operator notification.
type AdminAlert struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Message    string          `json:"message"`
	Source     string          `json:"source"`
	RecordType string          `json:"recordType,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Hash       string          `json:"hash,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Read       bool            `json:"read"`
}

// VehicleType is a pricing tier for the package catalog.
type VehicleType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	HasPricing  bool   `json:"hasPricing"`
}

// BaseVehicleTypes are the protected seed vehicle types.
var BaseVehicleTypes = []string{"compact", "midsize", "truck", "luxury"}

// IsBaseVehicleType reports whether id names a protected base vehicle type.
func IsBaseVehicleType(id string) bool {
	for _, base := range BaseVehicleTypes {
		if base == id {
			return true
		}
	}
	return false
}

// VehicleTypesSnapshot is the published vehicle-type catalog.
type VehicleTypesSnapshot struct {
	VehicleTypes []VehicleType `json:"vehicleTypes"`
	Version      int64         `json:"version"`
}

// CatalogItem describes a package or add-on offered to customers.
type CatalogItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Features    []string `json:"features,omitempty"`
	Visible     *bool    `json:"visible,omitempty"`
}

// PackagesSnapshot is the live pricing document read by the customer
// portal. SavedPrices is keyed by PriceKey.
type PackagesSnapshot struct {
	SavedPrices    map[string]string      `json:"savedPrices"`
	PackageMeta    map[string]CatalogItem `json:"packageMeta"`
	AddOnMeta      map[string]CatalogItem `json:"addOnMeta"`
	CustomPackages []CatalogItem          `json:"customPackages"`
	CustomAddOns   []CatalogItem          `json:"customAddOns"`
	Version        int64                  `json:"version"`
}

// FAQ is a published question and answer.
type FAQ struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
	Order    int    `json:"order,omitempty"`
}

// AboutSection is one block of the about page.
type AboutSection struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Order int    `json:"order,omitempty"`
}

// ContactInfo is the singleton business contact document.
type ContactInfo struct {
	Phone       string     `json:"phone"`
	Email       string     `json:"email"`
	Address     string     `json:"address"`
	Hours       string     `json:"hours"`
	ServiceArea string     `json:"serviceArea,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// ChecklistItem is one step of a job checklist.
type ChecklistItem struct {
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// Checklist records the steps and consumables of a completed job.
type Checklist struct {
	ID           string          `json:"id"`
	Employee     string          `json:"employee"`
	CustomerID   string          `json:"customerId,omitempty"`
	CustomerName string          `json:"customerName,omitempty"`
	VehicleType  string          `json:"vehicleType,omitempty"`
	ServiceName  string          `json:"serviceName,omitempty"`
	Items        []ChecklistItem `json:"items"`
	Materials    []UsageEvent    `json:"materials,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Booking is a scheduled appointment.
type Booking struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customerId,omitempty"`
	CustomerName string    `json:"customerName"`
	Package      string    `json:"package"`
	VehicleType  string    `json:"vehicleType,omitempty"`
	AddOns       []string  `json:"addOns,omitempty"`
	Date         string    `json:"date"`
	Time         string    `json:"time,omitempty"`
	Status       string    `json:"status"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Task is an internal to-do item.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Assignee  string    `json:"assignee,omitempty"`
	Due       string    `json:"due,omitempty"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Coupon is a discount code.
type Coupon struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Percent   float64   `json:"percent,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	ExpiresAt string    `json:"expiresAt,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EmailRecord is a simulated outbound email.
type EmailRecord struct {
	ID      string    `json:"id"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sentAt"`
}

// ArchivedDocument indexes a generated document held in the archive.
type ArchivedDocument struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RecordType  string    `json:"recordType,omitempty"`
	RecordID    string    `json:"recordId,omitempty"`
	ContentType string    `json:"contentType"`
	ObjectKey   string    `json:"objectKey"`
	Size        int64     `json:"size"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SessionUser is the current-user record held in the text store.
type SessionUser struct {
	User
	Token         string `json:"token,omitempty"`
	Impersonating bool   `json:"impersonating,omitempty"`
}
