// Package policy provides the security scanner for generated Terraform,
// built on Open Policy Agent (OPA).
//
// Every policy is a Rego module whose deny set yields findings. The engine
// evaluates each enabled policy against a document describing the parsed
// resources of a configuration:
//
//	{
//	  "resources": [
//	    {
//	      "address": "aws_s3_bucket.data",
//	      "type": "aws_s3_bucket",
//	      "name": "data",
//	      "attributes": {"bucket": "infraforge-data", "tags": {"Name": "data"}},
//	      "references": []
//	    }
//	  ],
//	  "context": {"request": "...", "environment": "production", "cloud_provider": "aws"}
//	}
//
// Nested blocks appear as lists of objects keyed by block type, and
// references list the addresses of the resources an expression points at.
//
// # Findings
//
// A deny element may be a string or an object with the keys id, title,
// resource, severity and guidance. Missing ids fall back to the policy name
// and missing severities to the policy default.
//
// # Usage
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	scanner := policy.NewScanner(engine, logger)
//	report, err := scanner.ScanArtifact(ctx, artifact, nil)
//
// Scanner also implements workflow.Scanner for the scan-security stage.
//
// # Built-in Policies
//
//  1. aws-s3 - public ACLs, missing encryption, missing versioning
//  2. aws-network - SSH or RDP open to the internet, unrestricted egress
//  3. aws-rds - unencrypted storage, public instances
//  4. aws-compute - IMDSv2, root volume and EBS encryption
//  5. tagging - untagged primary resources
//
// # Custom Policies
//
// Custom policies are loaded from .rego or .json files. Leading comments
// become the description, and "severity:" and "checks:" header lines set
// the policy defaults:
//
//	# Production buckets must log access.
//	# severity: high
//	package org.s3.logging
//
//	deny contains finding if {
//	    some r in input.resources
//	    r.type == "aws_s3_bucket"
//	    input.context.environment == "production"
//	    not r.attributes.logging
//	    finding := {"id": "ORG_S3_LOG_001", "title": "Access logging disabled", "resource": r.address}
//	}
//
// # Hot Reload
//
// The loader watches policy paths and hands the reloaded set to a callback:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return engine.ReplaceCustomPolicies(ctx, policies)
//	})
//
// Policies are compiled once into prepared queries and reused across
// evaluations.
package policy
