// Package amount turns free-text tipping instructions into amounts of the
// base on-chain currency.
//
// An instruction is split into a quantity token and a unit token. Resolution
// tries, in order:
//
//  1. A currency prefix symbol followed by a decimal ("$5", "€0.50").
//  2. A quantity (alias such as "a"/"an", or a decimal) followed by a unit
//     name looked up case-sensitively in the unit table ("500 bits").
//  3. The recipient's default amount and currency.
//
// Amounts priced in a currency other than the base currency are converted
// with a RateSource and rounded to 8 decimal places. The Resolver performs no
// I/O other than the rate lookup.
package amount
