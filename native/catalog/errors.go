package catalog

import "errors"

var (
	// ErrUnauthorized is returned when the caller is not the producer,
	// owner or manager required by the operation.
	ErrUnauthorized = errors.New("catalog: unauthorized")
	// ErrAlreadyRequested is returned when a publisher requests affiliate
	// status twice for the same product.
	ErrAlreadyRequested = errors.New("catalog: affiliate already requested")
	// ErrAlreadyClaimed is returned when a claim voucher reuses a consumed
	// nullifier.
	ErrAlreadyClaimed = errors.New("catalog: nullifier already claimed")
	// ErrProductNotFound is returned when the referenced product id is
	// unknown to the shop.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrRequestNotFound is returned when the referenced affiliate request
	// id is out of range.
	ErrRequestNotFound = errors.New("catalog: affiliate request not found")
	// ErrBeneficiaryNotFound is returned when a product references a
	// beneficiary id missing from the ledger.
	ErrBeneficiaryNotFound = errors.New("catalog: beneficiary not found")
	// ErrInsufficientPayment is returned when the supplied value or token
	// allowance does not cover the computed gross amount.
	ErrInsufficientPayment = errors.New("catalog: insufficient payment")
	// ErrInsufficientInventory is returned when a purchase or claim exceeds
	// the product's remaining amount.
	ErrInsufficientInventory = errors.New("catalog: insufficient inventory")
	// ErrOversubscribedSplit is returned when platform, affiliate and
	// beneficiary shares would exceed the gross payment.
	ErrOversubscribedSplit = errors.New("catalog: split exceeds gross payment")
	// ErrInvalidSignature is returned when a claim voucher's signature does
	// not recover to the shop's configured manager.
	ErrInvalidSignature = errors.New("catalog: invalid claim signature")
	// ErrSlippage is returned when an oracle conversion lands below the
	// buyer-supplied minimum amount out.
	ErrSlippage = errors.New("catalog: conversion below minimum amount out")
)
