package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		s3Policy(),
		networkPolicy(),
		databasePolicy(),
		computePolicy(),
		taggingPolicy(),
	}
}

// s3Policy checks bucket exposure, encryption and versioning.
func s3Policy() Policy {
	return Policy{
		Name:        "aws-s3",
		Description: "S3 buckets must not be public and must be encrypted and versioned",
		Severity:    SeverityHigh,
		Enabled:     true,
		Tags:        []string{"aws", "s3", "storage"},
		Checks:      []string{"IF_AWS_S3_001", "IF_AWS_S3_002", "IF_AWS_S3_003"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package infraforge.aws.s3

public_acls := {"public-read", "public-read-write", "website"}

buckets contains r if {
	some r in input.resources
	r.type == "aws_s3_bucket"
}

referenced_by(kind, address) if {
	some other in input.resources
	other.type == kind
	address in other.references
}

inline_encryption(r) if {
	some cfg in r.attributes.server_side_encryption_configuration
	some rule in cfg.rule
	some d in rule.apply_server_side_encryption_by_default
	d.sse_algorithm
}

inline_versioning(r) if {
	some v in r.attributes.versioning
	v.enabled == true
}

deny contains finding if {
	some r in input.resources
	r.type in {"aws_s3_bucket", "aws_s3_bucket_acl"}
	r.attributes.acl in public_acls
	finding := {
		"id": "IF_AWS_S3_001",
		"title": "S3 bucket ACL grants public access",
		"resource": r.address,
		"severity": "CRITICAL",
		"guidance": "Use the private ACL and add an aws_s3_bucket_public_access_block for the bucket",
	}
}

deny contains finding if {
	some r in buckets
	not inline_encryption(r)
	not referenced_by("aws_s3_bucket_server_side_encryption_configuration", r.address)
	finding := {
		"id": "IF_AWS_S3_002",
		"title": "S3 bucket has no server-side encryption",
		"resource": r.address,
		"severity": "HIGH",
		"guidance": "Add an aws_s3_bucket_server_side_encryption_configuration referencing this bucket",
	}
}

deny contains finding if {
	some r in buckets
	not inline_versioning(r)
	not referenced_by("aws_s3_bucket_versioning", r.address)
	finding := {
		"id": "IF_AWS_S3_003",
		"title": "S3 bucket versioning is not enabled",
		"resource": r.address,
		"severity": "MEDIUM",
		"guidance": "Add an aws_s3_bucket_versioning with status Enabled referencing this bucket",
	}
}
`,
	}
}

// networkPolicy checks security group rules open to the internet.
func networkPolicy() Policy {
	return Policy{
		Name:        "aws-network",
		Description: "Security groups must not expose administrative ports to the internet",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"aws", "network", "security-group"},
		Checks:      []string{"IF_AWS_SG_001", "IF_AWS_SG_002", "IF_AWS_SG_003"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package infraforge.aws.network

# [address, rule] pairs for every ingress rule, inline or standalone.
ingress contains [r.address, rule] if {
	some r in input.resources
	r.type == "aws_security_group"
	some rule in r.attributes.ingress
}

ingress contains [r.address, r.attributes] if {
	some r in input.resources
	r.type == "aws_security_group_rule"
	r.attributes.type == "ingress"
}

egress contains [r.address, rule] if {
	some r in input.resources
	r.type == "aws_security_group"
	some rule in r.attributes.egress
}

world(rule) if "0.0.0.0/0" in rule.cidr_blocks

world(rule) if "::/0" in rule.ipv6_cidr_blocks

covers(rule, port) if {
	rule.from_port <= port
	rule.to_port >= port
}

covers(rule, port) if {
	rule.protocol == "-1"
	is_number(port)
}

deny contains finding if {
	some entry in ingress
	rule := entry[1]
	world(rule)
	covers(rule, 22)
	finding := {
		"id": "IF_AWS_SG_001",
		"title": "Security group allows SSH from the internet",
		"resource": entry[0],
		"severity": "CRITICAL",
		"guidance": "Restrict port 22 to a bastion or VPN CIDR",
	}
}

deny contains finding if {
	some entry in ingress
	rule := entry[1]
	world(rule)
	covers(rule, 3389)
	finding := {
		"id": "IF_AWS_SG_002",
		"title": "Security group allows RDP from the internet",
		"resource": entry[0],
		"severity": "CRITICAL",
		"guidance": "Restrict port 3389 to a bastion or VPN CIDR",
	}
}

deny contains finding if {
	some entry in egress
	rule := entry[1]
	world(rule)
	rule.protocol == "-1"
	finding := {
		"id": "IF_AWS_SG_003",
		"title": "Security group allows all egress traffic",
		"resource": entry[0],
		"severity": "LOW",
		"guidance": "Limit egress to the protocols and destinations the workload needs",
	}
}
`,
	}
}

// databasePolicy checks RDS encryption and exposure.
func databasePolicy() Policy {
	return Policy{
		Name:        "aws-rds",
		Description: "Database instances must be encrypted and private",
		Severity:    SeverityHigh,
		Enabled:     true,
		Tags:        []string{"aws", "rds", "database"},
		Checks:      []string{"IF_AWS_RDS_001", "IF_AWS_RDS_002"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package infraforge.aws.rds

deny contains finding if {
	some r in input.resources
	r.type in {"aws_db_instance", "aws_rds_cluster"}
	not r.attributes.storage_encrypted == true
	finding := {
		"id": "IF_AWS_RDS_001",
		"title": "Database storage is not encrypted",
		"resource": r.address,
		"severity": "HIGH",
		"guidance": "Set storage_encrypted = true",
	}
}

deny contains finding if {
	some r in input.resources
	r.type == "aws_db_instance"
	r.attributes.publicly_accessible == true
	finding := {
		"id": "IF_AWS_RDS_002",
		"title": "Database instance is publicly accessible",
		"resource": r.address,
		"severity": "CRITICAL",
		"guidance": "Set publicly_accessible = false and place the instance in private subnets",
	}
}
`,
	}
}

// computePolicy checks instance metadata and volume encryption.
func computePolicy() Policy {
	return Policy{
		Name:        "aws-compute",
		Description: "Instances must require IMDSv2 and use encrypted volumes",
		Severity:    SeverityMedium,
		Enabled:     true,
		Tags:        []string{"aws", "ec2", "compute"},
		Checks:      []string{"IF_AWS_EC2_001", "IF_AWS_EC2_002", "IF_AWS_EBS_001"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package infraforge.aws.compute

imdsv2(r) if {
	some m in r.attributes.metadata_options
	m.http_tokens == "required"
}

encrypted_root(r) if {
	some d in r.attributes.root_block_device
	d.encrypted == true
}

deny contains finding if {
	some r in input.resources
	r.type in {"aws_instance", "aws_launch_template"}
	not imdsv2(r)
	finding := {
		"id": "IF_AWS_EC2_001",
		"title": "Instance metadata service does not require IMDSv2 tokens",
		"resource": r.address,
		"severity": "MEDIUM",
		"guidance": "Add metadata_options { http_tokens = \"required\" }",
	}
}

deny contains finding if {
	some r in input.resources
	r.type == "aws_instance"
	not encrypted_root(r)
	finding := {
		"id": "IF_AWS_EC2_002",
		"title": "Instance root volume is not encrypted",
		"resource": r.address,
		"severity": "MEDIUM",
		"guidance": "Add root_block_device { encrypted = true }",
	}
}

deny contains finding if {
	some r in input.resources
	r.type == "aws_ebs_volume"
	not r.attributes.encrypted == true
	finding := {
		"id": "IF_AWS_EBS_001",
		"title": "EBS volume is not encrypted",
		"resource": r.address,
		"severity": "HIGH",
		"guidance": "Set encrypted = true on the volume",
	}
}
`,
	}
}

// taggingPolicy requires tags on the primary taggable resources.
func taggingPolicy() Policy {
	return Policy{
		Name:        "tagging",
		Description: "Primary resources must carry tags",
		Severity:    SeverityLow,
		Enabled:     true,
		Tags:        []string{"hygiene", "tags"},
		Checks:      []string{"IF_GEN_TAG_001"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package infraforge.tagging

taggable := {
	"aws_s3_bucket",
	"aws_instance",
	"aws_vpc",
	"aws_subnet",
	"aws_db_instance",
	"aws_security_group",
	"aws_eks_cluster",
	"aws_lb",
}

deny contains finding if {
	some r in input.resources
	r.type in taggable
	not r.attributes.tags
	finding := {
		"id": "IF_GEN_TAG_001",
		"title": "Resource has no tags",
		"resource": r.address,
		"severity": "LOW",
		"guidance": "Add tags with at least Name and Environment",
	}
}
`,
	}
}
